package anomaly

import (
	"healthfolio-risk/internal/models"
)

type message struct {
	significance string
	actions      []string
}

var deviationMessages = map[models.DeviationType]message{
	models.DeviationSpike: {
		significance: "Latest reading is far above your recent baseline",
		actions:      []string{"Re-measure to confirm the reading", "Note any symptoms, activity or medication changes"},
	},
	models.DeviationCrash: {
		significance: "Latest reading is far below your recent baseline",
		actions:      []string{"Re-measure to confirm the reading", "Note any symptoms, activity or medication changes"},
	},
	models.DeviationSustainedElevation: {
		significance: "Readings have stayed above the reference range",
		actions:      []string{"Schedule a review with your healthcare provider", "Keep measuring daily to track the trend"},
	},
	models.DeviationSustainedDepression: {
		significance: "Readings have stayed below the reference range",
		actions:      []string{"Schedule a review with your healthcare provider", "Keep measuring daily to track the trend"},
	},
	models.DeviationErraticPattern: {
		significance: "Readings are unusually variable",
		actions:      []string{"Measure at consistent times of day", "Check device fit and calibration"},
	},
}

// 类别相关的补充建议
var categoryActions = map[models.AlertCategory]string{
	models.CategoryCardiovascular: "Seek urgent care if you have chest pain, fainting or shortness of breath",
	models.CategoryMetabolic:      "Review recent meals and medication timing",
	models.CategoryNeurological:   "Prioritise rest and a regular sleep schedule",
	models.CategoryRespiratory:    "Seek urgent care if breathing becomes difficult",
	models.CategoryPsychological:  "Reach out to someone you trust or a mental health professional",
}

func messageFor(category models.AlertCategory, deviation models.DeviationType) message {
	m := deviationMessages[deviation]
	actions := append([]string(nil), m.actions...)
	if extra, ok := categoryActions[category]; ok {
		actions = append(actions, extra)
	}
	return message{significance: m.significance, actions: actions}
}
