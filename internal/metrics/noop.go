package metrics

// NoopCollector is a no-op implementation of the Collector interface.
// All methods are empty stubs that do nothing.
type NoopCollector struct{}

func (n *NoopCollector) ConnectionOpened()                      {}
func (n *NoopCollector) ConnectionClosed()                      {}
func (n *NoopCollector) WebSocketUpgraded()                     {}
func (n *NoopCollector) AuthAttempt(stage string, success bool) {}
func (n *NoopCollector) MessageTypeProcessed(typeURI string)    {}
func (n *NoopCollector) MessageStored(direction string)         {}
func (n *NoopCollector) MessageDelivered(direction string)      {}
func (n *NoopCollector) MessageDeduped()                        {}
func (n *NoopCollector) MessageExpired()                        {}
func (n *NoopCollector) QueueRejected(reason string)            {}
func (n *NoopCollector) ForwardAttempt(result string)           {}
func (n *NoopCollector) ForwardQueueDepth(n int)                {}
func (n *NoopCollector) ACLDenied(rule string)                  {}
