package drafts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/formsync/pkg/apperror"
)

type tickingClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *tickingClock {
	return &tickingClock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

// fakeRemote is an in-memory draft server.
type fakeRemote struct {
	mu    sync.Mutex
	clock *tickingClock

	drafts map[string]FormSubmissionDraft
	data   map[string]DraftSubmission

	UploadErr   error
	FailUpload  map[string]error
	ListErr     error
	DeleteErr   error
	DownloadErr error

	ListHook   func()
	UploadHook func(DraftSubmission)

	Lists     int
	Uploads   int
	Deletes   int
	Downloads int
	versions  int
}

func newFakeRemote(clock *tickingClock) *fakeRemote {
	return &fakeRemote{
		clock:  clock,
		drafts: make(map[string]FormSubmissionDraft),
		data:   make(map[string]DraftSubmission),
	}
}

// seed stores a draft as if another device had uploaded it.
func (f *fakeRemote) seed(d DraftSubmission) FormSubmissionDraft {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.store(d)
}

func (f *fakeRemote) store(d DraftSubmission) FormSubmissionDraft {
	f.versions++
	version := FormSubmissionDraftVersion{
		ID:                    fmt.Sprintf("v%d", f.versions),
		FormSubmissionDraftID: d.FormSubmissionDraftID,
		CreatedAt:             f.clock.Now(),
	}
	server := f.drafts[d.FormSubmissionDraftID]
	server.ID = d.FormSubmissionDraftID
	server.FormsAppID = d.FormsAppID
	server.FormID = d.Definition.ID
	server.Title = d.Title
	server.CreatedAt = d.CreatedAt
	server.UpdatedAt = version.CreatedAt
	server.Versions = append(server.Versions, version)
	f.drafts[d.FormSubmissionDraftID] = server
	f.data[d.FormSubmissionDraftID] = d
	return server
}

func (f *fakeRemote) ListDrafts(ctx context.Context, formsAppID int64) ([]FormSubmissionDraft, error) {
	f.mu.Lock()
	f.Lists++
	hook := f.ListHook
	err := f.ListErr
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	out := []FormSubmissionDraft{}
	for _, d := range f.drafts {
		if d.FormsAppID == formsAppID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeRemote) UploadDraft(ctx context.Context, d DraftSubmission) (*FormSubmissionDraftVersion, error) {
	f.mu.Lock()
	f.Uploads++
	hook := f.UploadHook
	err := f.UploadErr
	if e, ok := f.FailUpload[d.FormSubmissionDraftID]; ok {
		err = e
	}
	f.mu.Unlock()
	if hook != nil {
		hook(d)
	}
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	server := f.store(d)
	v := server.Versions[len(server.Versions)-1]
	return &v, nil
}

func (f *fakeRemote) DownloadDraftData(ctx context.Context, d FormSubmissionDraft) (*DraftSubmission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Downloads++
	if f.DownloadErr != nil {
		return nil, f.DownloadErr
	}
	data, ok := f.data[d.ID]
	if !ok {
		return nil, apperror.FromHTTPStatus(404, "", nil)
	}
	return &data, nil
}

func (f *fakeRemote) DeleteDraft(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deletes++
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	if _, ok := f.drafts[id]; !ok {
		return apperror.FromHTTPStatus(404, "", nil)
	}
	delete(f.drafts, id)
	delete(f.data, id)
	return nil
}

func (f *fakeRemote) set(fn func(*fakeRemote)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeRemote) has(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.drafts[id]
	return ok
}
