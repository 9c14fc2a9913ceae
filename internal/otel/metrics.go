package otel

import "go.opentelemetry.io/otel/metric"

// Metrics holds the task queue's metric instruments.
type Metrics struct {
	TaskDuration    metric.Float64Histogram
	TasksPublished  metric.Int64Counter
	TasksCompleted  metric.Int64Counter
	TasksFailed     metric.Int64Counter
	TasksCancelled  metric.Int64Counter
	ActiveTasks     metric.Int64UpDownCounter
	QueueDepth      metric.Int64UpDownCounter
	OrphansRecovered metric.Int64Counter
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.TaskDuration, err = meter.Float64Histogram("taskqueue.task.duration",
		metric.WithDescription("Task execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.TasksPublished, err = meter.Int64Counter("taskqueue.tasks.published",
		metric.WithDescription("Total tasks published"),
	)
	if err != nil {
		return nil, err
	}

	m.TasksCompleted, err = meter.Int64Counter("taskqueue.tasks.completed",
		metric.WithDescription("Total tasks completed successfully"),
	)
	if err != nil {
		return nil, err
	}

	m.TasksFailed, err = meter.Int64Counter("taskqueue.tasks.failed",
		metric.WithDescription("Total tasks that ended in error"),
	)
	if err != nil {
		return nil, err
	}

	m.TasksCancelled, err = meter.Int64Counter("taskqueue.tasks.cancelled",
		metric.WithDescription("Total tasks cancelled while pending"),
	)
	if err != nil {
		return nil, err
	}

	m.ActiveTasks, err = meter.Int64UpDownCounter("taskqueue.tasks.active",
		metric.WithDescription("Number of tasks currently executing on this runner"),
	)
	if err != nil {
		return nil, err
	}

	m.QueueDepth, err = meter.Int64UpDownCounter("taskqueue.queue.depth",
		metric.WithDescription("Approximate pending task count, sampled periodically"),
	)
	if err != nil {
		return nil, err
	}

	m.OrphansRecovered, err = meter.Int64Counter("taskqueue.orphans.recovered",
		metric.WithDescription("Total orphaned tasks recovered by take_out_the_dead"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
