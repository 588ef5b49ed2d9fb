package util

import "github.com/influxdata/influxdb-client-go/api/write"

// MockWriteAPI is the default metrics sink when no InfluxDB client is
// configured. Every write is a no-op.
type MockWriteAPI struct{}

func (m *MockWriteAPI) WriteRecord(line string) {}

func (m *MockWriteAPI) WritePoint(point *write.Point) {}

func (m *MockWriteAPI) Flush() {}

func (m *MockWriteAPI) Close() {}

// Errors returns a channel for reading errors from async writes. The mock
// never produces any.
func (m *MockWriteAPI) Errors() <-chan error { return nil }
