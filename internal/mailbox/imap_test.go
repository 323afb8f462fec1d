package mailbox

import (
	"errors"
	"testing"

	"github.com/emersion/go-imap"

	"github.com/google/go-cmp/cmp"
)

type fakeFolderClient struct {
	folders   []string
	created   []string
	createErr error
}

func (f *fakeFolderClient) List(ref, name string, ch chan *imap.MailboxInfo) error {
	defer close(ch)
	for _, folder := range f.folders {
		ch <- &imap.MailboxInfo{Name: folder}
	}
	return nil
}

func (f *fakeFolderClient) Create(name string) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, name)
	f.folders = append(f.folders, name)
	return nil
}

func TestHasFolder(t *testing.T) {
	t.Parallel()

	c := &fakeFolderClient{folders: []string{"INBOX", "dmarc-report"}}

	has, err := HasFolder(c, "dmarc-report")
	if err != nil {
		t.Fatalf("got error: %v", err)
	}
	if !has {
		t.Error("existing folder not found")
	}

	has, err = HasFolder(c, "does-not-exist")
	if err != nil {
		t.Fatalf("got error: %v", err)
	}
	if has {
		t.Error("missing folder reported as existing")
	}
}

func TestListFolders(t *testing.T) {
	t.Parallel()

	c := &fakeFolderClient{folders: []string{"INBOX", "dmarc-report", "Sent"}}
	folders, err := ListFolders(c)
	if err != nil {
		t.Fatalf("got error: %v", err)
	}
	if diff := cmp.Diff(c.folders, folders); diff != "" {
		t.Errorf("folders (-want +got):\n%s", diff)
	}
}

func TestEnsureFolder(t *testing.T) {
	t.Parallel()

	// an existing folder must not be created again
	c := &fakeFolderClient{folders: []string{"INBOX", "dmarc-report"}}
	if err := EnsureFolder(c, "dmarc-report"); err != nil {
		t.Fatalf("got error: %v", err)
	}
	if len(c.created) != 0 {
		t.Errorf("existing folder created again: %v", c.created)
	}

	// a missing folder is created
	if err := EnsureFolder(c, "archive"); err != nil {
		t.Fatalf("got error: %v", err)
	}
	if len(c.created) != 1 || c.created[0] != "archive" {
		t.Errorf("folder not created: %v", c.created)
	}

	// a create race answered with ALREADYEXISTS is not an error
	c = &fakeFolderClient{createErr: errors.New("[ALREADYEXISTS] Mailbox already exists")}
	if err := EnsureFolder(c, "archive"); err != nil {
		t.Errorf("already existing folder treated as error: %v", err)
	}

	// everything else is
	c = &fakeFolderClient{createErr: errors.New("NO create not permitted")}
	if err := EnsureFolder(c, "archive"); err == nil {
		t.Error("expected error on failed create")
	}
}
