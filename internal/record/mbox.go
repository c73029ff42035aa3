package record

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/emersion/go-imap/utf7"
	"github.com/emersion/go-mbox"
	"github.com/emersion/go-message"
	gomail "github.com/emersion/go-message/mail"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"

	"github.com/emurenMRz/mboxfwd/internal/fwdsplit"
)

// Keys of records read from mailboxes.
const (
	KeyMailbox     = "mailbox"
	KeyIndex       = "index"
	KeyMessageID   = "message_id"
	KeyStatus      = "status"
	KeyAttachments = "attachments"
)

func init() {
	message.CharsetReader = charsetReader
}

// MboxDir is a directory of mbox files, one per mailbox. File names are IMAP-UTF7
// encoded mailbox names. Every message becomes a record with ID
// "<mailbox>/<index>.json".
type MboxDir struct {
	Dir string
}

func (s MboxDir) Items(ctx context.Context) ([]Item, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("reading input directory: %w", err)
	}

	var items []Item
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}

		// Files on disk are IMAP-UTF7 encoded
		mailbox, err := utf7.Encoding.NewDecoder().String(e.Name())
		if err != nil {
			mailbox = e.Name()
		}

		messages, err := ReadMailbox(filepath.Join(s.Dir, e.Name()))
		if err != nil {
			return nil, err
		}
		for i, raw := range messages {
			i, raw := i, raw
			items = append(items, Item{
				ID:   filepath.Join(mailbox, fmt.Sprintf("%05d.json", i)),
				Load: func() (Record, error) { return ParseMessage(raw, mailbox, i) },
			})
		}
	}
	sortItems(items)
	return items, nil
}

// ReadMailbox returns the raw messages of an mbox file, without their envelope lines.
func ReadMailbox(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening mailbox: %w", err)
	}
	defer f.Close()

	var messages [][]byte
	mr := mbox.NewReader(f)
	for {
		r, err := mr.NextMessage()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading mailbox %s: %w", path, err)
		}
		raw, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("reading message %d of %s: %w", len(messages), path, err)
		}
		messages = append(messages, raw)
	}
	return messages, nil
}

// ParseMessage turns one RFC 5322 message into a record. The body is the first
// text/plain part, or the text of the first text/html part when there is none.
func ParseMessage(raw []byte, mailbox string, index int) (Record, error) {
	mr, err := gomail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fwdsplit.NewInputError(fmt.Sprintf("parsing message: %v", err))
	}
	defer mr.Close()

	rec := Record{
		KeyMailbox: mailbox,
		KeyIndex:   index,
	}

	h := mr.Header
	for _, f := range []fwdsplit.CanonicalField{fwdsplit.From, fwdsplit.To, fwdsplit.Cc, fwdsplit.Bcc} {
		if v := decodeAddressList(h, f.String()); v != "" {
			rec[f.String()] = v
		}
	}
	if subject, err := h.Subject(); err == nil && subject != "" {
		rec[fwdsplit.Subject.String()] = subject
	}
	if date := h.Get("Date"); date != "" {
		rec[fwdsplit.Date.String()] = date
	}
	if id, err := h.MessageID(); err == nil && id != "" {
		rec[KeyMessageID] = id
	}
	if status := h.Get("Status"); status != "" {
		rec[KeyStatus] = status
	}

	var plain, html string
	var attachments []string
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if plain != "" || html != "" {
				break
			}
			return nil, fwdsplit.NewInputError(fmt.Sprintf("reading message body: %v", err))
		}

		switch ph := p.Header.(type) {
		case *gomail.InlineHeader:
			ctype, _, err := ph.ContentType()
			if err != nil || ctype == "" {
				ctype = "text/plain"
			}
			switch {
			case ctype == "text/plain" && plain == "":
				b, err := io.ReadAll(p.Body)
				if err != nil {
					return nil, fwdsplit.NewInputError(fmt.Sprintf("reading text part: %v", err))
				}
				plain = string(b)
			case ctype == "text/html" && html == "":
				text, err := htmlToText(p.Body)
				if err != nil {
					return nil, fwdsplit.NewInputError(fmt.Sprintf("reading html part: %v", err))
				}
				html = text
			}
		case *gomail.AttachmentHeader:
			name, _ := ph.Filename()
			attachments = append(attachments, name)
		}
	}

	rec[KeyBody] = plain
	if plain == "" {
		rec[KeyBody] = html
	}
	if len(attachments) > 0 {
		rec[KeyAttachments] = attachments
	}
	return rec, nil
}

// decodeAddressList formats an address header as "Name <addr>, addr".
func decodeAddressList(h gomail.Header, key string) string {
	raw := h.Get(key)
	if raw == "" {
		return ""
	}
	addrs, err := h.AddressList(key)
	if err != nil {
		// Fallback: decode the whole header as encoded-words
		if text, err := h.Text(key); err == nil {
			return text
		}
		return raw
	}
	var parts []string
	for _, a := range addrs {
		if a.Name != "" {
			parts = append(parts, a.Name+" <"+a.Address+">")
		} else {
			parts = append(parts, a.Address)
		}
	}
	return strings.Join(parts, ", ")
}

// htmlToText extracts the readable text of an HTML body, keeping line structure.
func htmlToText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", err
	}
	doc.Find("head, script, style").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, tr, li, blockquote, h1, h2, h3, h4, h5, h6").AppendHtml("\n")

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		lines = append(lines, strings.TrimSpace(line))
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}

func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	if charset == "" {
		return input, nil
	}
	enc, err := ianaindex.IANA.Encoding(strings.ToLower(charset))
	if err != nil || enc == nil {
		return input, nil
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}
