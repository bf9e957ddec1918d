package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// AssessmentChanged is true when any assessment setting changed. These
	// apply from the next run.
	AssessmentChanged bool

	// AssessmentFields names the assessment keys that changed.
	AssessmentFields []string

	// RestartRequired names sections that changed but are only read at
	// start-up, such as providers or delivery.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.AssessmentChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	d.AssessmentFields = diffAssessment(old.Assessment, new.Assessment)
	d.AssessmentChanged = len(d.AssessmentFields) > 0

	if old.Server.DiagnosticsAddr != new.Server.DiagnosticsAddr {
		d.RestartRequired = append(d.RestartRequired, "server.diagnostics_addr")
	}
	if old.Server.Notify != new.Server.Notify {
		d.RestartRequired = append(d.RestartRequired, "server.notify")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Assessment.Language != new.Assessment.Language {
		d.RestartRequired = append(d.RestartRequired, "assessment.language")
	}
	if old.Assessment.NearMissSimilarity != new.Assessment.NearMissSimilarity {
		d.RestartRequired = append(d.RestartRequired, "assessment.near_miss_similarity")
	}
	if old.Delivery != new.Delivery {
		d.RestartRequired = append(d.RestartRequired, "delivery")
	}
	return d
}

// diffAssessment lists the assessment keys that differ.
func diffAssessment(old, new AssessmentConfig) []string {
	var fields []string
	if old.WordPause != new.WordPause {
		fields = append(fields, "word_pause")
	}
	if old.DistractionInterval != new.DistractionInterval {
		fields = append(fields, "distraction_interval")
	}
	if old.MaxListen != new.MaxListen {
		fields = append(fields, "max_listen")
	}
	if old.Prompts != new.Prompts {
		fields = append(fields, "prompts")
	}
	if !slices.EqualFunc(old.WordSets, new.WordSets, slices.Equal[[]string]) {
		fields = append(fields, "word_sets")
	}
	return fields
}
