package device

//go:generate mockgen -destination "mock_device_test.go" -package $GOPACKAGE -write_package_comment=false pwmfan/device DutyCycleSetter
//go:generate mockgen -destination "mock_temperature_test.go" -package $GOPACKAGE -write_package_comment=false pwmfan/device/temperature Source
//go:generate mockgen -destination "mock_fan_test.go" -package $GOPACKAGE -write_package_comment=false pwmfan/device/fan EdgeWaiter
//go:generate mockgen -destination "mock_telemetry_test.go" -package $GOPACKAGE -write_package_comment=false pwmfan/telemetry Sink
