package driver

import (
	"reflect"

	"github.com/vkngwrapper/core/v3/core1_0"
)

// MissingFeatures returns the names of the features enabled in required that
// available lacks. A nil required set is always satisfied.
func MissingFeatures(required, available *core1_0.PhysicalDeviceFeatures) []string {
	if required == nil {
		return nil
	}
	if available == nil {
		available = &core1_0.PhysicalDeviceFeatures{}
	}

	var missing []string
	req := reflect.ValueOf(required).Elem()
	avail := reflect.ValueOf(available).Elem()
	for i := 0; i < req.NumField(); i++ {
		field := req.Field(i)
		if field.Kind() != reflect.Bool || !field.Bool() {
			continue
		}
		if !avail.Field(i).Bool() {
			missing = append(missing, req.Type().Field(i).Name)
		}
	}
	return missing
}
