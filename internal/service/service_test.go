package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rchat/internal/event"
	"github.com/rchat/internal/model"
	"github.com/rchat/internal/repository"
)

// In-memory fakes for the store interfaces. They mirror the repository
// semantics the services rely on: ErrNotFound sentinels, idempotent read
// markers, pair-key uniqueness for private chats.

type fakeChats struct {
	mu           sync.Mutex
	chats        map[string]*model.Chat
	participants map[string]map[string]*model.Participant
	pairKeys     map[string]string // pair key -> chat id
	// failNextCreatePrivate simulates losing the unique-index race.
	failNextCreatePrivate bool
}

func newFakeChats() *fakeChats {
	return &fakeChats{
		chats:        make(map[string]*model.Chat),
		participants: make(map[string]map[string]*model.Participant),
		pairKeys:     make(map[string]string),
	}
}

func (f *fakeChats) GetByID(_ context.Context, id string) (*model.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.chats[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeChats) Create(_ context.Context, c *model.Chat) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.chats[c.ID] = &cp
	return nil
}

func (f *fakeChats) CreatePrivate(_ context.Context, c *model.Chat, userA, userB string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := repository.PrivatePairKey(userA, userB)
	if f.failNextCreatePrivate {
		// A concurrent creator won the unique-index race.
		f.failNextCreatePrivate = false
		winner := &model.Chat{ID: "winner-" + key, Type: model.ChatTypePrivate, CreatedBy: userB, CreatedAt: c.CreatedAt}
		f.chats[winner.ID] = winner
		f.pairKeys[key] = winner.ID
		f.participants[winner.ID] = map[string]*model.Participant{
			userA: {ChatID: winner.ID, UserID: userA, Role: model.RoleMember},
			userB: {ChatID: winner.ID, UserID: userB, Role: model.RoleMember},
		}
		return repository.ErrDuplicatePrivateChat
	}
	if _, exists := f.pairKeys[key]; exists {
		return repository.ErrDuplicatePrivateChat
	}
	cp := *c
	f.chats[c.ID] = &cp
	f.pairKeys[key] = c.ID
	f.participants[c.ID] = map[string]*model.Participant{
		userA: {ChatID: c.ID, UserID: userA, Role: model.RoleMember, JoinedAt: c.CreatedAt},
		userB: {ChatID: c.ID, UserID: userB, Role: model.RoleMember, JoinedAt: c.CreatedAt},
	}
	return nil
}

func (f *fakeChats) FindPrivateChat(_ context.Context, userA, userB string) (*model.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.pairKeys[repository.PrivatePairKey(userA, userB)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *f.chats[id]
	return &cp, nil
}

func (f *fakeChats) GetParticipant(_ context.Context, chatID, userID string) (*model.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.participants[chatID][userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	pp := *p
	return &pp, nil
}

func (f *fakeChats) GetParticipants(_ context.Context, chatID string) ([]model.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Participant, 0, len(f.participants[chatID]))
	for _, p := range f.participants[chatID] {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (f *fakeChats) GetParticipantUserIDs(ctx context.Context, chatID string) ([]string, error) {
	ps, _ := f.GetParticipants(ctx, chatID)
	ids := make([]string, 0, len(ps))
	for _, p := range ps {
		ids = append(ids, p.UserID)
	}
	return ids, nil
}

func (f *fakeChats) IsParticipant(_ context.Context, chatID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.participants[chatID][userID]
	return ok, nil
}

func (f *fakeChats) AddParticipant(_ context.Context, p *model.Participant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.participants[p.ChatID] == nil {
		f.participants[p.ChatID] = make(map[string]*model.Participant)
	}
	if _, exists := f.participants[p.ChatID][p.UserID]; exists {
		return nil // ON CONFLICT DO NOTHING
	}
	pp := *p
	f.participants[p.ChatID][p.UserID] = &pp
	return nil
}

func (f *fakeChats) RemoveParticipant(_ context.Context, chatID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.participants[chatID], userID)
	return nil
}

func (f *fakeChats) UpdateParticipantRole(_ context.Context, chatID, userID string, role model.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.participants[chatID][userID]; ok {
		p.Role = role
	}
	return nil
}

func (f *fakeChats) TransferOwnership(_ context.Context, chatID, newOwnerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.participants[chatID] {
		if p.Role == model.RoleOwner && p.UserID != newOwnerID {
			p.Role = model.RoleAdmin
		}
	}
	if p, ok := f.participants[chatID][newOwnerID]; ok {
		p.Role = model.RoleOwner
	}
	return nil
}

type fakeMsgs struct {
	mu     sync.Mutex
	byID   map[string]*model.Message
	byChat map[string][]string
	reads  map[string]map[string]bool
}

func newFakeMsgs() *fakeMsgs {
	return &fakeMsgs{
		byID:   make(map[string]*model.Message),
		byChat: make(map[string][]string),
		reads:  make(map[string]map[string]bool),
	}
}

func (f *fakeMsgs) Create(_ context.Context, m *model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	mp := *m
	f.byID[m.ID] = &mp
	f.byChat[m.ChatID] = append(f.byChat[m.ChatID], m.ID)
	return nil
}

func (f *fakeMsgs) GetByID(_ context.Context, id string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	mp := *m
	return &mp, nil
}

func (f *fakeMsgs) GetLastMessage(_ context.Context, chatID string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := f.byChat[chatID]
	if len(ids) == 0 {
		return nil, nil
	}
	mp := *f.byID[ids[len(ids)-1]]
	return &mp, nil
}

func (f *fakeMsgs) MarkRead(_ context.Context, messageID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reads[messageID] == nil {
		f.reads[messageID] = make(map[string]bool)
	}
	if f.reads[messageID][userID] {
		return false, nil
	}
	f.reads[messageID][userID] = true
	return true, nil
}

func (f *fakeMsgs) MarkReadBefore(_ context.Context, chatID, beforeMessageID, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	before, ok := f.byID[beforeMessageID]
	if !ok {
		return 0, nil
	}
	var n int64
	for _, id := range f.byChat[chatID] {
		m := f.byID[id]
		if !olderThan(m, before) || m.SenderUserID == userID {
			continue
		}
		if f.reads[m.ID] == nil {
			f.reads[m.ID] = make(map[string]bool)
		}
		if !f.reads[m.ID][userID] {
			f.reads[m.ID][userID] = true
			n++
		}
	}
	return n, nil
}

func olderThan(a, b *model.Message) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func (f *fakeMsgs) readBy(messageID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.reads[messageID]))
	for id := range f.reads[messageID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

type fakeUsers struct {
	byID       map[string]*model.User
	byPublicID map[string]*model.User
}

func newFakeUsers(users ...*model.User) *fakeUsers {
	f := &fakeUsers{byID: make(map[string]*model.User), byPublicID: make(map[string]*model.User)}
	for _, u := range users {
		f.byID[u.ID] = u
		f.byPublicID[u.PublicID] = u
	}
	return f
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*model.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetByPublicID(_ context.Context, publicID string) (*model.User, error) {
	u, ok := f.byPublicID[publicID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u, nil
}

type fakeMedia struct{}

func (fakeMedia) URL(mediaID string) string {
	if mediaID == "" {
		return ""
	}
	return "http://media.test/api/media/" + mediaID
}

type fakePusher struct {
	mu     sync.Mutex
	online map[string]bool
	pushed map[string][]event.Event
}

func newFakePusher(onlineUsers ...string) *fakePusher {
	p := &fakePusher{online: make(map[string]bool), pushed: make(map[string][]event.Event)}
	for _, id := range onlineUsers {
		p.online[id] = true
	}
	return p
}

func (p *fakePusher) IsOnline(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[userID]
}

func (p *fakePusher) Push(userID string, ev event.Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.online[userID] {
		return false
	}
	p.pushed[userID] = append(p.pushed[userID], ev)
	return true
}

func (p *fakePusher) eventsFor(userID string, name event.Name) []event.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []event.Event
	for _, ev := range p.pushed[userID] {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

type notification struct {
	userID, title, body string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *fakeNotifier) Notify(_ context.Context, userID, title, body string, _ map[string]string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{userID: userID, title: title, body: body})
}

// testEnv wires the services over the fakes with a fixed clock.
type testEnv struct {
	chats    *fakeChats
	msgs     *fakeMsgs
	users    *fakeUsers
	pusher   *fakePusher
	notifier *fakeNotifier

	dispatcher *Dispatcher
	tracker    *ReadTracker
	membership *Membership

	clock time.Time
}

func newTestEnv(users []*model.User, online ...string) *testEnv {
	env := &testEnv{
		chats:    newFakeChats(),
		msgs:     newFakeMsgs(),
		users:    newFakeUsers(users...),
		pusher:   newFakePusher(online...),
		notifier: &fakeNotifier{},
		clock:    time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	env.dispatcher = NewDispatcher(env.chats, env.msgs, env.users, fakeMedia{}, env.pusher, env.notifier)
	env.dispatcher.now = func() time.Time {
		env.clock = env.clock.Add(time.Second)
		return env.clock
	}
	env.tracker = NewReadTracker(env.chats, env.msgs, env.pusher)
	env.membership = NewMembership(env.chats, env.users, env.pusher, env.dispatcher)
	env.membership.now = env.dispatcher.now
	return env
}

func user(id, publicID, first, last string) *model.User {
	return &model.User{ID: id, PublicID: publicID, FirstName: first, LastName: last, Email: id + "@test", AvatarURL: "http://a/" + id}
}

func (e *testEnv) addGroup(chatID, ownerID string, memberIDs ...string) *model.Chat {
	chat := &model.Chat{ID: chatID, Type: model.ChatTypeGroup, Name: "grp " + chatID, CreatedBy: ownerID, CreatedAt: e.clock}
	e.chats.Create(context.Background(), chat)
	e.chats.AddParticipant(context.Background(), &model.Participant{ChatID: chatID, UserID: ownerID, Role: model.RoleOwner, JoinedAt: e.clock})
	for _, id := range memberIDs {
		e.chats.AddParticipant(context.Background(), &model.Participant{ChatID: chatID, UserID: id, Role: model.RoleMember, AddedBy: ownerID, JoinedAt: e.clock})
	}
	return chat
}
