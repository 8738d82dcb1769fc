package azure

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"projectplane/internal/model"
)

// MemoryResourceService is an in-process ResourceService. It backs dev mode
// and the orchestration tests; resource groups and vaults exist only as
// records in maps.
type MemoryResourceService struct {
	mu            sync.Mutex
	identity      uuid.UUID
	subscriptions map[uuid.UUID]bool // subscription -> access
	groups        map[string]*memoryGroup
}

type memoryGroup struct {
	group  model.ResourceGroup
	tags   map[string]string
	roles  map[string][]string // principal -> roles
	vaults map[string]*memoryVault
}

type memoryVault struct {
	vault    model.KeyVault
	policies map[uuid.UUID]KeyVaultPermissions
	secrets  map[string]string
}

// NewMemoryResourceService creates an empty in-memory service with a fresh
// orchestrator identity.
func NewMemoryResourceService() *MemoryResourceService {
	return &MemoryResourceService{
		identity:      uuid.New(),
		subscriptions: map[uuid.UUID]bool{},
		groups:        map[string]*memoryGroup{},
	}
}

// GrantSubscription marks a subscription as accessible.
func (s *MemoryResourceService) GrantSubscription(subscriptionID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[subscriptionID] = true
}

func (s *MemoryResourceService) GetIdentity(context.Context) (uuid.UUID, error) {
	return s.identity, nil
}

func (s *MemoryResourceService) HasSubscriptionAccess(_ context.Context, subscriptionID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscriptions[subscriptionID], nil
}

func groupKey(subscriptionID uuid.UUID, name string) string {
	return subscriptionID.String() + "/" + strings.ToLower(name)
}

func (s *MemoryResourceService) CreateResourceGroup(_ context.Context, subscriptionID uuid.UUID, name, region string) (*model.ResourceGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.subscriptions[subscriptionID] {
		return nil, fmt.Errorf("no access to subscription %s", subscriptionID)
	}

	key := groupKey(subscriptionID, name)
	existing, ok := s.groups[key]
	if !ok {
		existing = &memoryGroup{
			group: model.ResourceGroup{
				ID:             fmt.Sprintf("/subscriptions/%s/resourceGroups/%s", subscriptionID, name),
				Name:           name,
				SubscriptionID: subscriptionID,
				Region:         region,
			},
			tags:   map[string]string{},
			roles:  map[string][]string{},
			vaults: map[string]*memoryVault{},
		}
		s.groups[key] = existing
	}

	group := existing.group
	return &group, nil
}

func (s *MemoryResourceService) DeleteResourceGroup(_ context.Context, subscriptionID uuid.UUID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groups, groupKey(subscriptionID, name))
	return nil
}

func (s *MemoryResourceService) TagResourceGroup(_ context.Context, group *model.ResourceGroup, tags map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.groups[groupKey(group.SubscriptionID, group.Name)]
	if !ok {
		return fmt.Errorf("resource group %s not found", group.Name)
	}
	for k, v := range tags {
		existing.tags[k] = v
	}
	return nil
}

func (s *MemoryResourceService) AssignRole(_ context.Context, group *model.ResourceGroup, principalID uuid.UUID, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.groups[groupKey(group.SubscriptionID, group.Name)]
	if !ok {
		return fmt.Errorf("resource group %s not found", group.Name)
	}

	key := principalID.String()
	for _, r := range existing.roles[key] {
		if r == role {
			return nil
		}
	}
	existing.roles[key] = append(existing.roles[key], role)
	return nil
}

func (s *MemoryResourceService) CreateKeyVault(_ context.Context, group *model.ResourceGroup, name string) (*model.KeyVault, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.groups[groupKey(group.SubscriptionID, group.Name)]
	if !ok {
		return nil, fmt.Errorf("resource group %s not found", group.Name)
	}

	vault, ok := existing.vaults[name]
	if !ok {
		vault = &memoryVault{
			vault: model.KeyVault{
				VaultID:   existing.group.ID + "/providers/Microsoft.KeyVault/vaults/" + name,
				VaultName: name,
				VaultURL:  fmt.Sprintf("https://%s.vault.azure.net/", name),
			},
			policies: map[uuid.UUID]KeyVaultPermissions{},
			secrets:  map[string]string{},
		}
		existing.vaults[name] = vault
	}

	v := vault.vault
	return &v, nil
}

func (s *MemoryResourceService) SetKeyVaultPolicy(_ context.Context, vault *model.KeyVault, principalID uuid.UUID, permissions KeyVaultPermissions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mv := s.findVault(vault.VaultName)
	if mv == nil {
		return fmt.Errorf("key vault %s not found", vault.VaultName)
	}
	mv.policies[principalID] = permissions
	return nil
}

func (s *MemoryResourceService) DeleteKeyVaultSecret(_ context.Context, vault *model.KeyVault, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mv := s.findVault(vault.VaultName)
	if mv == nil {
		return nil
	}
	delete(mv.secrets, name)
	return nil
}

// StoreSecret writes a secret value directly into a vault. Test helper.
func (s *MemoryResourceService) StoreSecret(vaultName, name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mv := s.findVault(vaultName); mv != nil {
		mv.secrets[name] = value
	}
}

// HasSecret reports whether a vault holds the named secret. Test helper.
func (s *MemoryResourceService) HasSecret(vaultName, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	mv := s.findVault(vaultName)
	if mv == nil {
		return false
	}
	_, ok := mv.secrets[name]
	return ok
}

// Roles reports the roles assigned to a principal on a group. Test helper.
func (s *MemoryResourceService) Roles(group *model.ResourceGroup, principalID uuid.UUID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.groups[groupKey(group.SubscriptionID, group.Name)]
	if !ok {
		return nil
	}
	return existing.roles[principalID.String()]
}

// Policy reports the vault policy for a principal. Test helper.
func (s *MemoryResourceService) Policy(vaultName string, principalID uuid.UUID) (KeyVaultPermissions, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mv := s.findVault(vaultName)
	if mv == nil {
		return KeyVaultPermissions{}, false
	}
	p, ok := mv.policies[principalID]
	return p, ok
}

// HasResourceGroup reports whether a group exists. Test helper.
func (s *MemoryResourceService) HasResourceGroup(subscriptionID uuid.UUID, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.groups[groupKey(subscriptionID, name)]
	return ok
}

func (s *MemoryResourceService) findVault(name string) *memoryVault {
	for _, g := range s.groups {
		if v, ok := g.vaults[name]; ok {
			return v
		}
	}
	return nil
}
