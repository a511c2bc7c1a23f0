package monitoring

import "testing"

func TestCheckHealthAggregation(t *testing.T) {
	hc := NewHealthChecker("drumbeat", "test")
	hc.AddCheck("ok", func() CheckResult { return CheckResult{Status: StatusHealthy} })

	status := hc.CheckHealth()
	if status.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %s", status.Status)
	}

	hc.AddCheck("warn", func() CheckResult { return CheckResult{Status: StatusDegraded} })
	if got := hc.CheckHealth().Status; got != StatusDegraded {
		t.Fatalf("expected degraded, got %s", got)
	}

	hc.AddCheck("down", func() CheckResult { return CheckResult{Status: StatusUnhealthy} })
	if got := hc.CheckHealth().Status; got != StatusUnhealthy {
		t.Fatalf("expected unhealthy, got %s", got)
	}
}

func TestConfigurationHealthCheck(t *testing.T) {
	check := ConfigurationHealthCheck(map[string]string{"DATABASE_URL": "postgres://x"})
	if res := check(); res.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %s", res.Status)
	}

	check = ConfigurationHealthCheck(map[string]string{"DATABASE_URL": ""})
	if res := check(); res.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy, got %s", res.Status)
	}
}
