// mocksidecar simulates a backend's GPU monitoring sidecar for local
// testing: it serves a static /metrics document matching the schema the
// metrics poller expects. It is a stand-in for the real NVML-backed
// sidecar, which lives outside this module's scope.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/inferlb/inferlb/internal/registry"
)

func main() {
	port := "12434"
	if len(os.Args) > 1 {
		port = os.Args[1]
	}

	http.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		doc := registry.MetricsDocument{
			ActiveRequests:   0,
			GPUUtilization:   35,
			GPUMemoryUsedGB:  8.2,
			GPUMemoryTotalGB: 24.0,
			GPUTemperature:   62,
			GPUCount:         1,
			GPUs: []registry.GPUSample{
				{Index: 0, Name: "mock-gpu-0", Utilization: 35, MemoryUsedGB: 8.2, MemoryTotalGB: 24.0, TemperatureC: 62},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	})

	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"healthy"}`)
	})

	addr := fmt.Sprintf(":%s", port)
	log.Printf("mocksidecar listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}
