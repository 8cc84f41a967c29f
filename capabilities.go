package tagcache

// Capabilities declares what a Backend supports. The values are fixed.
type Capabilities struct {
	AutomaticCleaning bool
	Tags              bool
	ExpiredRead       bool
	Priority          bool
	InfiniteLifetime  bool
	ListKeys          bool
}

var capabilities = Capabilities{
	AutomaticCleaning: true,
	Tags:              true,
	ExpiredRead:       true,
	Priority:          false,
	InfiniteLifetime:  true,
	ListKeys:          true,
}

// Map returns the capabilities keyed the way cache frontends expect them.
func (c Capabilities) Map() map[string]bool {
	return map[string]bool{
		"automatic_cleaning": c.AutomaticCleaning,
		"tags":               c.Tags,
		"expired_read":       c.ExpiredRead,
		"priority":           c.Priority,
		"infinite_lifetime":  c.InfiniteLifetime,
		"get_list":           c.ListKeys,
	}
}
