package sysinfoservice

import "github.com/stretchr/testify/mock"

type MockSystemInfoService struct {
	mock.Mock
}

func (m *MockSystemInfoService) DeviceModel() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockSystemInfoService) DeviceType() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockSystemInfoService) OperatingSystem() string {
	args := m.Called()
	return args.String(0)
}
