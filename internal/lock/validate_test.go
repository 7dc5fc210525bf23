package lock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr bool
	}{
		{"relay", `{"lock_type":"gpio","lock_gpio_pin":18}`, false},
		{"relay with duration", `{"lock_type":"gpio","lock_gpio_pin":17,"lock_open_duration_ms":5000}`, false},
		{"relay with null host", `{"lock_type":"gpio","lock_gpio_pin":18,"lock_host":null}`, false},
		{"shelly", `{"lock_type":"shelly","lock_host":"192.168.1.50"}`, false},
		{"tasmota with port", `{"lock_type":"tasmota","lock_host":"10.0.0.7:8080","lock_open_duration_ms":null}`, false},
		{"extra fields allowed", `{"lock_type":"shelly","lock_host":"10.0.0.2","label":"fridge"}`, false},
		{"relay without pin", `{"lock_type":"gpio"}`, true},
		{"negative pin", `{"lock_type":"gpio","lock_gpio_pin":-1}`, true},
		{"shelly without host", `{"lock_type":"shelly"}`, true},
		{"host with path", `{"lock_type":"tasmota","lock_host":"10.0.0.7/cm"}`, true},
		{"zero duration", `{"lock_type":"shelly","lock_host":"10.0.0.2","lock_open_duration_ms":0}`, true},
		{"unknown type", `{"lock_type":"zigbee","lock_host":"10.0.0.2"}`, true},
		{"not an object", `[1,2]`, true},
		{"malformed", `{"lock_type":`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate([]byte(tt.json))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
