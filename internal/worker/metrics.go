package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	enrichmentTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scene_server_enrichment_tasks_total",
		Help: "Обработанные задачи обогащения реплик по результату.",
	}, []string{"status"})

	enrichmentStepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scene_server_enrichment_steps_total",
		Help: "Шаги обогащения (классификация, озвучка) по результату.",
	}, []string{"step", "status"})
)
