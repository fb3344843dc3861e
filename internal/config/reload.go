package config

import "reflect"

// restartSections lists the sections fixed for the process lifetime, in
// reporting order. Routes, services and the cache backend are built once
// at startup; only the logging level applies live.
var restartSections = []struct {
	name    string
	changed func(a, b *GatewaySpec) bool
}{
	{"routes", func(a, b *GatewaySpec) bool { return !reflect.DeepEqual(a.Routes, b.Routes) }},
	{"services", func(a, b *GatewaySpec) bool { return !reflect.DeepEqual(a.Services, b.Services) }},
	{"listener", func(a, b *GatewaySpec) bool {
		return !reflect.DeepEqual(a.Listener, b.Listener) || a.Admin != b.Admin
	}},
	{"forwarder", func(a, b *GatewaySpec) bool { return !reflect.DeepEqual(a.Forwarder, b.Forwarder) }},
	{"cache", func(a, b *GatewaySpec) bool { return !reflect.DeepEqual(a.Cache, b.Cache) }},
	{"rateLimit", func(a, b *GatewaySpec) bool { return !reflect.DeepEqual(a.RateLimit, b.RateLimit) }},
	{"observability", func(a, b *GatewaySpec) bool {
		return a.Observability.Tracing != b.Observability.Tracing ||
			a.Observability.Metrics != b.Observability.Metrics
	}},
}

// RestartRequired reports the sections that differ between previous and
// current but only take effect after a restart.
func RestartRequired(previous, current *GatewayConfig) []string {
	if previous == nil || current == nil {
		return nil
	}

	var sections []string
	for _, s := range restartSections {
		if s.changed(&previous.Spec, &current.Spec) {
			sections = append(sections, s.name)
		}
	}
	return sections
}
