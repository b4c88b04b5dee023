package audiocore

const (
	// DefaultWarnThreshold is the number of undrained blocks at which the tap
	// producer warns that the consumer is falling behind
	DefaultWarnThreshold = 500

	// MaxChannels bounds channel counts accepted from host tap points
	MaxChannels = 8
)
