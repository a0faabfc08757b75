package devserver

import (
	"sort"
	"sync"

	"github.com/dmitrijs2005/kappi/internal/client/models"
)

type provider struct {
	Provider   string
	ProviderID string
}

type user struct {
	ID           string
	FullName     string
	Email        string
	PasswordHash []byte
	Providers    []provider
	Coordinates  *models.Coordinates
	Address      *models.Address
}

func (u *user) profile() models.UserProfile {
	p := models.UserProfile{ID: u.ID, FullName: u.FullName, Email: u.Email}
	for _, pr := range u.Providers {
		p.Providers = append(p.Providers, pr.Provider)
	}
	return p
}

func (u *user) linked(name, id string) bool {
	for _, p := range u.Providers {
		if p.Provider == name && p.ProviderID == id {
			return true
		}
	}
	return false
}

type storedScan struct {
	models.Scan
	UserID string
	seq    int
}

// memoryStore keeps users and scans in process memory.
type memoryStore struct {
	mu      sync.Mutex
	byEmail map[string]*user
	byID    map[string]*user
	scans   []storedScan
	seq     int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{byEmail: map[string]*user{}, byID: map[string]*user{}}
}

func (s *memoryStore) userByEmail(email string) (*user, bool) {
	u, ok := s.byEmail[email]
	return u, ok
}

func (s *memoryStore) userByID(id string) (*user, bool) {
	u, ok := s.byID[id]
	return u, ok
}

func (s *memoryStore) addUser(u *user) {
	s.byEmail[u.Email] = u
	s.byID[u.ID] = u
}

func (s *memoryStore) addScan(userID string, scan models.Scan) {
	s.seq++
	s.scans = append(s.scans, storedScan{Scan: scan, UserID: userID, seq: s.seq})
}

// scanByClientID finds a scan userID already submitted under clientID.
func (s *memoryStore) scanByClientID(userID, clientID string) (models.Scan, bool) {
	if clientID == "" {
		return models.Scan{}, false
	}
	for _, sc := range s.scans {
		if sc.UserID == userID && sc.ClientID == clientID {
			return sc.Scan, true
		}
	}
	return models.Scan{}, false
}

// scansFor returns userID's scans, newest first.
func (s *memoryStore) scansFor(userID string) []models.Scan {
	var own []storedScan
	for _, sc := range s.scans {
		if sc.UserID == userID {
			own = append(own, sc)
		}
	}
	sort.Slice(own, func(i, j int) bool { return own[i].seq > own[j].seq })

	out := make([]models.Scan, 0, len(own))
	for _, sc := range own {
		out = append(out, sc.Scan)
	}
	return out
}
