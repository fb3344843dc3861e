package config

// validConfigYAML is a minimal valid configuration used across tests.
const validConfigYAML = `
apiVersion: gateway.energygw.io/v1
kind: Gateway
metadata:
  name: test-gateway
spec:
  listener:
    port: 3000
  services:
    - name: forecast
      url: http://forecast.local:8000
  routes:
    - name: forecast
      methods: [POST]
      path: /forecast/:type
      params:
        type: [load, pv, price]
      service: forecast
      cache:
        enabled: true
        ttl: 20s
  observability:
    logging:
      level: info
`

// invalidConfigYAML fails validation.
const invalidConfigYAML = `
apiVersion: gateway.energygw.io/v1
kind: Gateway
metadata:
  name: test-gateway
spec:
  listener:
    port: -1
  services:
    - name: forecast
`
