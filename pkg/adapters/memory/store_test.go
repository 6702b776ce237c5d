package memory_test

import (
	"testing"

	"github.com/aretw0/forge/pkg/adapters/memory"
	contract "github.com/aretw0/forge/pkg/ports/tests"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	contract.RunKVStoreContract(t, store)
}

func TestMemoryUsageLog_Contract(t *testing.T) {
	contract.RunUsageLogContract(t, memory.NewUsageLog(), memory.DefaultMinSamples)
}

func TestMemoryUsageLog_CustomThreshold(t *testing.T) {
	contract.RunUsageLogContract(t, memory.NewUsageLog(memory.WithMinSamples(5)), 5)
}
