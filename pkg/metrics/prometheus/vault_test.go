package prometheus

import (
	"testing"
	"time"

	"github.com/caskfs/caskfs/pkg/metrics"
)

func TestNewVaultMetricsCollects(t *testing.T) {
	metrics.InitRegistry()

	m := NewVaultMetrics()
	if m == nil {
		t.Fatal("expected metrics instance after InitRegistry")
	}

	m.SetUnlocked("my_vault", true)
	m.ObserveStart(10*time.Millisecond, true)
	m.ObserveStop(5 * time.Millisecond)
	m.ObserveMount(time.Second, false)
	m.ObserveUnmount(100*time.Millisecond, true)
	m.SetUnlocked("my_vault", false)

	families, err := metrics.GetRegistry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	want := map[string]bool{
		"caskfs_vault_unlocked":                   false,
		"caskfs_vault_lifecycle_operations_total": false,
		"caskfs_vault_lifecycle_duration_seconds": false,
	}
	for _, fam := range families {
		if _, ok := want[fam.GetName()]; ok {
			want[fam.GetName()] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("metric family %s not registered", name)
		}
	}
}
