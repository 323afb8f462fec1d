package mailbox

import (
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/dmarcwatch/dmarcwatch/internal/config"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// Connect dials the configured IMAP server. Plaintext connections are
// upgraded with STARTTLS when the server supports it.
func Connect(conf config.IMAPConfig, logger imap.Logger) (*client.Client, error) {
	tlsConfig := tls.Config{} // nolint: gosec
	if conf.IgnoreCert {
		tlsConfig.InsecureSkipVerify = true // nolint:gosec
	}
	if conf.SSL {
		c, err := client.DialTLS(conf.Host, &tlsConfig)
		if err != nil {
			return nil, err
		}
		c.Timeout = conf.Timeout.Duration
		c.ErrorLog = logger
		return c, nil
	}
	c, err := client.Dial(conf.Host)
	if err != nil {
		return nil, err
	}
	c.ErrorLog = logger
	c.Timeout = conf.Timeout.Duration
	support, err := c.SupportStartTLS()
	if err != nil {
		return nil, err
	}
	if support {
		if err := c.StartTLS(&tlsConfig); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// folderClient is the part of the imap client the folder operations
// need. client.Client satisfies it.
type folderClient interface {
	List(ref, name string, ch chan *imap.MailboxInfo) error
	Create(name string) error
}

// HasFolder reports whether folderName exists in the account.
func HasFolder(c folderClient, folderName string) (bool, error) {
	folders, err := ListFolders(c)
	if err != nil {
		return false, err
	}
	for _, name := range folders {
		if name == folderName {
			return true, nil
		}
	}
	return false, nil
}

// ListFolders returns all folder names in the account.
func ListFolders(c folderClient) ([]string, error) {
	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.List("", "*", mailboxes)
	}()

	var folders []string
	for m := range mailboxes {
		folders = append(folders, m.Name)
	}

	if err := <-done; err != nil {
		return nil, err
	}

	return folders, nil
}

// EnsureFolder creates folderName if it does not exist yet.
func EnsureFolder(c folderClient, folderName string) error {
	hasFolder, err := HasFolder(c, folderName)
	if err != nil {
		return fmt.Errorf("could not check if folder %s exists: %w", folderName, err)
	}
	if hasFolder {
		return nil
	}
	if err := c.Create(folderName); err != nil {
		// another client may have created the folder in the meantime,
		// servers answer that with an ALREADYEXISTS response
		if strings.Contains(strings.ToLower(err.Error()), "already") {
			return nil
		}
		return fmt.Errorf("could not create folder %s: %w", folderName, err)
	}
	return nil
}

// SearchCriteria builds the search for undeleted messages, optionally
// limited to the last days.
func SearchCriteria(days int) *imap.SearchCriteria {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.DeletedFlag}
	if days > 0 {
		criteria.Since = time.Now().AddDate(0, 0, -days)
	}
	return criteria
}

// FetchItems is the set of items needed to build an Email from a fetch.
func FetchItems() []imap.FetchItem {
	section := &imap.BodySectionName{}
	return []imap.FetchItem{
		section.FetchItem(),
		imap.FetchEnvelope,
		imap.FetchFlags,
		imap.FetchInternalDate,
		imap.FetchUid,
	}
}

// MoveMessage copies the message to the target folder and marks the
// original as deleted. The caller runs Expunge once per batch.
func MoveMessage(c *client.Client, uid uint32, targetFolder string) error {
	seq := new(imap.SeqSet)
	seq.AddNum(uid)
	if err := c.UidCopy(seq, targetFolder); err != nil {
		return fmt.Errorf("could not copy message %d to %s: %w", uid, targetFolder, err)
	}
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.DeletedFlag}
	if err := c.UidStore(seq, item, flags, nil); err != nil {
		return fmt.Errorf("could not set delete flag on message %d: %w", uid, err)
	}
	return nil
}
