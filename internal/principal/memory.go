package principal

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryPrincipalStore is a mutex-guarded in-memory PrincipalStore.
type MemoryPrincipalStore struct {
	mu         sync.Mutex
	principals map[uuid.UUID]*Principal
}

func NewMemoryPrincipalStore() *MemoryPrincipalStore {
	return &MemoryPrincipalStore{principals: make(map[uuid.UUID]*Principal)}
}

func (s *MemoryPrincipalStore) FindByKindAndExternalID(_ context.Context, kind Kind, externalID string) (*Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.principals {
		if p.Kind == kind && p.ExternalID == externalID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryPrincipalStore) Save(_ context.Context, p *Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.principals[p.ID] = &cp
	return nil
}

func (s *MemoryPrincipalStore) Update(ctx context.Context, p *Principal) error {
	return s.Save(ctx, p)
}

// MemoryUserStore is a mutex-guarded in-memory UserStore.
type MemoryUserStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*User
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[uuid.UUID]*User)}
}

func copyUser(u *User) *User {
	cp := *u
	return &cp
}

func (s *MemoryUserStore) FindByEmail(_ context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return copyUser(u), nil
		}
	}
	return nil, nil
}

func (s *MemoryUserStore) FindByID(_ context.Context, id uuid.UUID) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return copyUser(u), nil
	}
	return nil, nil
}

func (s *MemoryUserStore) FindByRememberMeToken(_ context.Context, token string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.RememberMeToken != nil && *u.RememberMeToken == token {
			return copyUser(u), nil
		}
	}
	return nil, nil
}

func (s *MemoryUserStore) FindByResetToken(_ context.Context, token string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.PasswordResetToken != nil && *u.PasswordResetToken == token {
			return copyUser(u), nil
		}
	}
	return nil, nil
}

func (s *MemoryUserStore) Save(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = copyUser(u)
	return nil
}

func (s *MemoryUserStore) Update(ctx context.Context, u *User) error {
	return s.Save(ctx, u)
}

func (s *MemoryUserStore) DeleteAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = make(map[uuid.UUID]*User)
	return nil
}

// MemoryServiceCredentialStore is a mutex-guarded in-memory ServiceCredentialStore.
type MemoryServiceCredentialStore struct {
	mu    sync.Mutex
	creds map[uuid.UUID]*ServiceCredential
}

func NewMemoryServiceCredentialStore() *MemoryServiceCredentialStore {
	return &MemoryServiceCredentialStore{creds: make(map[uuid.UUID]*ServiceCredential)}
}

func (s *MemoryServiceCredentialStore) FindByPrincipalID(_ context.Context, principalID uuid.UUID) (*ServiceCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.creds[principalID]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (s *MemoryServiceCredentialStore) Save(_ context.Context, c *ServiceCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.creds[c.PrincipalID] = &cp
	return nil
}

// MemoryResetAttemptStore is a mutex-guarded in-memory PasswordResetAttemptStore.
type MemoryResetAttemptStore struct {
	mu       sync.Mutex
	attempts []ResetAttempt
}

func NewMemoryResetAttemptStore() *MemoryResetAttemptStore {
	return &MemoryResetAttemptStore{}
}

func (s *MemoryResetAttemptStore) CountSince(_ context.Context, email string, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, a := range s.attempts {
		if a.Email == email && !a.AttemptedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryResetAttemptStore) Record(_ context.Context, attempt ResetAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, attempt)
	return nil
}
