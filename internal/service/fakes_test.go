package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/and161185/goph-talk/internal/errs"
	"github.com/and161185/goph-talk/internal/limiter"
	"github.com/and161185/goph-talk/internal/model"
	"github.com/and161185/goph-talk/internal/repository"
)

type fakeUsers struct {
	mu     sync.Mutex
	byName map[string]*model.User
	nextID int64

	createErr error
	getErr    error
	listErr   error
	markErr   error
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if f.byName == nil {
		f.byName = map[string]*model.User{}
	}
	if _, exists := f.byName[u.Username]; exists {
		return errs.ErrAlreadyExists
	}
	f.nextID++
	u.ID = f.nextID
	u.CreatedAt = time.Now()
	cpy := *u
	f.byName[u.Username] = &cpy
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, u := range f.byName {
		if u.ID == id {
			c := *u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeUsers) GetByUsername(_ context.Context, username string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byName[username]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (f *fakeUsers) ListExcept(_ context.Context, id int64) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := []model.User{}
	for _, u := range f.byName {
		if u.ID != id {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeUsers) MarkPhoneVerified(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	for _, u := range f.byName {
		if u.ID == id {
			u.PhoneVerified = true
			return nil
		}
	}
	return errs.ErrNotFound
}

func (f *fakeUsers) add(id int64, username, phone string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.byName == nil {
		f.byName = map[string]*model.User{}
	}
	f.byName[username] = &model.User{ID: id, Username: username, DisplayName: username, Phone: phone}
	if id > f.nextID {
		f.nextID = id
	}
}

type fakeLimiter struct {
	allowOK  bool
	allowErr error

	failBlocked bool
	failErr     error

	successErr error

	lastScope    string
	allowCalls   int
	failureCalls int
	successCalls int
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(_ context.Context, scope, _ string, _ []byte) (bool, time.Duration, error) {
	l.allowCalls++
	l.lastScope = scope
	return l.allowOK, 0, l.allowErr
}

func (l *fakeLimiter) Success(_ context.Context, scope, _ string, _ []byte) error {
	l.successCalls++
	l.lastScope = scope
	return l.successErr
}

func (l *fakeLimiter) Failure(_ context.Context, scope, _ string, _ []byte) (bool, time.Duration, error) {
	l.failureCalls++
	l.lastScope = scope
	return l.failBlocked, 0, l.failErr
}

type fakeIssuer struct{ err error }

func (f fakeIssuer) Issue(id model.Identity) (model.Tokens, error) {
	if f.err != nil {
		return model.Tokens{}, f.err
	}
	return model.Tokens{AccessToken: "tok-" + id.Username, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

// memMessages is an in-memory message store with store-assigned ids and timestamps.
type memMessages struct {
	mu        sync.Mutex
	msgs      []model.Message
	appendErr error
	histErr   error
	known     map[int64]bool
}

var _ repository.MessageRepository = (*memMessages)(nil)

func (m *memMessages) Append(_ context.Context, from, to int64, content string) (model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return model.Message{}, m.appendErr
	}
	if m.known != nil && !m.known[to] {
		return model.Message{}, errs.ErrNotFound
	}
	msg := model.Message{ID: int64(len(m.msgs) + 1), FromID: from, ToID: to, Content: content, CreatedAt: time.Now()}
	m.msgs = append(m.msgs, msg)
	return msg, nil
}

func (m *memMessages) History(_ context.Context, a, b int64) ([]model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.histErr != nil {
		return nil, m.histErr
	}
	out := []model.Message{}
	for _, msg := range m.msgs {
		if (msg.FromID == a && msg.ToID == b) || (msg.FromID == b && msg.ToID == a) {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memMessages) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.msgs)
}

type fakeCodes struct {
	mu      sync.Mutex
	records []model.PhoneVerification

	createErr error
	latestErr error
}

var _ repository.VerificationRepository = (*fakeCodes)(nil)

func (f *fakeCodes) Create(_ context.Context, phone, code string, exp time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.records = append(f.records, model.PhoneVerification{ID: int64(len(f.records) + 1), Phone: phone, Code: code, ExpiresAt: exp})
	return nil
}

func (f *fakeCodes) Latest(_ context.Context, phone, code string) (*model.PhoneVerification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latestErr != nil {
		return nil, f.latestErr
	}
	for i := len(f.records) - 1; i >= 0; i-- {
		r := f.records[i]
		if r.Phone == phone && r.Code == code {
			return &r, nil
		}
	}
	return nil, errs.ErrNotFound
}

type captureSender struct {
	mu    sync.Mutex
	phone string
	code  string
	err   error
}

func (c *captureSender) Send(_ context.Context, phone, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phone, c.code = phone, code
	return c.err
}
