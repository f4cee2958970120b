//            _     _        _
//   ___  __| |___| |_ __ _| |_ ___
//  / _ \/ _` / __| __/ _` | __/ __|
// |  __/ (_| \__ \ || (_| | |_\__ \
//  \___|\__,_|___/\__\__,_|\__|___/
//
//  Copyright © 2021 - 2026 The edstats Authors. All rights reserved.
//
//  CONTACT: engineering@edstats.io
//

package monitoring

import "github.com/prometheus/client_golang/prometheus"

var noop prometheus.Registerer = &NoopPrometheusRegistery{}

// NoopPrometheusRegistery is a no-op registry mainly used to disable
// metrics registration when monitoring is disabled.
type NoopPrometheusRegistery struct{}

func (n *NoopPrometheusRegistery) Register(prometheus.Collector) error {
	return nil
}

func (n *NoopPrometheusRegistery) MustRegister(...prometheus.Collector) {
}

func (n *NoopPrometheusRegistery) Unregister(prometheus.Collector) bool {
	return true
}
