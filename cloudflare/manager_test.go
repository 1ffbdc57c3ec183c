package cloudflare

import (
	"context"
	"testing"

	"apphost/logger"
)

func TestNewManager(t *testing.T) {
	manager := NewManager(nil, false, logger.Discard())
	if manager.IsEnabled() {
		t.Error("Manager should be disabled with nil client")
	}

	manager = NewManager(disabledClient(t), true, logger.Discard())
	if !manager.IsEnabled() {
		t.Error("Manager should be enabled with client")
	}
	if !manager.autoGen {
		t.Error("Manager should have autoGen=true")
	}
}

func TestRegisterIngress_Disabled(t *testing.T) {
	manager := NewManager(nil, false, logger.Discard())

	domain, err := manager.RegisterIngress(context.Background(), "mealie-app")
	if err != nil {
		t.Fatalf("RegisterIngress failed with disabled manager: %v", err)
	}
	if domain != nil {
		t.Error("Expected domain to be nil with disabled manager")
	}
}

func TestRegisterIngress_NoAutoGen(t *testing.T) {
	manager := NewManager(disabledClient(t), false, logger.Discard())

	domain, err := manager.RegisterIngress(context.Background(), "mealie-app")
	if err != nil {
		t.Fatalf("RegisterIngress failed with autoGen disabled: %v", err)
	}
	if domain != nil {
		t.Error("Expected domain to be nil with autoGen disabled")
	}
}

func TestRegisterIngress(t *testing.T) {
	manager := NewManager(disabledClient(t), true, logger.Discard())

	domain, err := manager.RegisterIngress(context.Background(), "mealie-app")
	if err != nil {
		t.Fatalf("RegisterIngress failed: %v", err)
	}
	if domain == nil {
		t.Fatal("Expected domain to be returned")
	}

	// A second registration returns the cached domain
	domain2, err := manager.RegisterIngress(context.Background(), "mealie-app")
	if err != nil {
		t.Fatalf("Second RegisterIngress failed: %v", err)
	}
	if domain2 == nil || domain.Domain != domain2.Domain {
		t.Errorf("Expected same domain from both calls, got %v and %v", domain, domain2)
	}
}

func TestDeleteIngress(t *testing.T) {
	manager := NewManager(disabledClient(t), true, logger.Discard())

	if _, err := manager.RegisterIngress(context.Background(), "mealie-app"); err != nil {
		t.Fatalf("RegisterIngress failed: %v", err)
	}
	if err := manager.DeleteIngress(context.Background(), "mealie-app"); err != nil {
		t.Fatalf("DeleteIngress failed: %v", err)
	}
	if _, exists := manager.GetIngress("mealie-app"); exists {
		t.Error("Domain still exists after deletion")
	}

	// Deleting an unknown resource is a no-op
	if err := manager.DeleteIngress(context.Background(), "missing"); err != nil {
		t.Errorf("Expected no error for unknown resource, got %v", err)
	}
}

func TestDeleteAll(t *testing.T) {
	manager := NewManager(disabledClient(t), true, logger.Discard())
	for _, resource := range []string{"web", "api"} {
		_, _ = manager.RegisterIngress(context.Background(), resource)
	}

	if err := manager.DeleteAll(context.Background()); err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}
	if n := len(manager.GetAllIngress()); n != 0 {
		t.Errorf("Expected no domains after DeleteAll, got %d", n)
	}
}

func TestGetAllIngress_Empty(t *testing.T) {
	manager := NewManager(nil, false, logger.Discard())
	if domains := manager.GetAllIngress(); len(domains) != 0 {
		t.Errorf("Expected empty domains list, got %d domains", len(domains))
	}
}
