// internal/eventlistener/handler.go
package eventlistener

import (
	"strings"
)

// Filter решает, нужно ли обрабатывать событие.
type Filter func(event Event) bool

// MarkerFilter пропускает события, в логах которых есть строка marker.
func MarkerFilter(marker string) Filter {
	return func(event Event) bool {
		for _, line := range event.Logs {
			if strings.Contains(line, marker) {
				return true
			}
		}
		return false
	}
}
