package config

const (
	// FeaturePreRestoreDump takes a safety dump of current state before a restore.
	FeaturePreRestoreDump = "pre_restore_dump"
	// FeatureVerifyAfterBackup runs the verify pass right after a backup batch.
	FeatureVerifyAfterBackup = "verify_after_backup"
	// FeatureMetrics writes the metrics textfile after each operation.
	FeatureMetrics = "metrics"
)

// DefaultFeatureValues defines the default values for each feature
var DefaultFeatureValues = map[string]bool{
	FeaturePreRestoreDump:    true,
	FeatureVerifyAfterBackup: false,
	FeatureMetrics:           false,
}

// IsFeatureEnabled checks if a feature is enabled in the configuration.
func (c *Config) IsFeatureEnabled(feature string) bool {
	value, exists := c.Features[feature]
	if !exists {
		return DefaultFeatureValues[feature]
	}
	return value
}
