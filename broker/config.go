package broker

// Config holds broker-agnostic connection configuration (spec §6).
// Broker plugins extract the fields they need; anything plugin-specific
// goes in Extra.
type Config struct {
	// Host is the broker hostname or IP.
	Host string

	// Port is the broker TCP port.
	Port string

	// ClientIDPrefix is prepended to a generated unique suffix to form
	// each connection's MQTT client identifier.
	ClientIDPrefix string

	// Username and Password authenticate the connection. Either may be
	// empty for brokers that allow anonymous connections.
	Username string
	Password string

	// ShareGroup names the MQTT 5 shared-subscription group used by
	// worker processes: subscriptions become "$share/<ShareGroup>/<filter>".
	ShareGroup string

	// Extra holds plugin-specific configuration (TLS settings, keepalive
	// overrides, and the like).
	Extra map[string]any
}

// URL returns the broker's TCP connect address in "tcp://host:port" form,
// the shape github.com/eclipse/paho.mqtt.golang expects.
func (c Config) URL() string {
	return "tcp://" + c.Host + ":" + c.Port
}
