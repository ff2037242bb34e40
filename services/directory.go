package services

import "sync"

// ParticipantDirectory maps tournament aliases to identities and back.
type ParticipantDirectory interface {
	Bind(tournamentID int, alias string, userID int64)
	Unbind(tournamentID int, alias string)
	IdentityOf(tournamentID int, alias string) (int64, bool)
	AliasOf(tournamentID int, userID int64) (string, bool)
	// TournamentsOf lists the tournaments userID holds an alias in.
	TournamentsOf(userID int64) []int
	Forget(tournamentID int)
}

type tournamentAliases struct {
	byAlias map[string]int64
	byUser  map[int64]string
}

type memoryDirectory struct {
	mu          sync.RWMutex
	tournaments map[int]*tournamentAliases
}

func NewParticipantDirectory() ParticipantDirectory {
	return &memoryDirectory{tournaments: make(map[int]*tournamentAliases)}
}

func (d *memoryDirectory) Bind(tournamentID int, alias string, userID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ta, ok := d.tournaments[tournamentID]
	if !ok {
		ta = &tournamentAliases{byAlias: make(map[string]int64), byUser: make(map[int64]string)}
		d.tournaments[tournamentID] = ta
	}
	ta.byAlias[alias] = userID
	ta.byUser[userID] = alias
}

func (d *memoryDirectory) Unbind(tournamentID int, alias string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ta, ok := d.tournaments[tournamentID]
	if !ok {
		return
	}
	if userID, ok := ta.byAlias[alias]; ok {
		delete(ta.byUser, userID)
		delete(ta.byAlias, alias)
	}
}

func (d *memoryDirectory) IdentityOf(tournamentID int, alias string) (int64, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ta, ok := d.tournaments[tournamentID]
	if !ok {
		return 0, false
	}
	id, ok := ta.byAlias[alias]
	return id, ok
}

func (d *memoryDirectory) AliasOf(tournamentID int, userID int64) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ta, ok := d.tournaments[tournamentID]
	if !ok {
		return "", false
	}
	alias, ok := ta.byUser[userID]
	return alias, ok
}

func (d *memoryDirectory) TournamentsOf(userID int64) []int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var ids []int
	for tid, ta := range d.tournaments {
		if _, ok := ta.byUser[userID]; ok {
			ids = append(ids, tid)
		}
	}
	return ids
}

func (d *memoryDirectory) Forget(tournamentID int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.tournaments, tournamentID)
}
