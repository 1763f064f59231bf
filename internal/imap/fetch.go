package imap

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/vdavid/icloud-mail-mcp/internal/models"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultFetchLimit applies when a filter has no positive limit.
	DefaultFetchLimit = 10
	// parseWorkers bounds how many fetched messages are parsed at once.
	parseWorkers = 4
)

// FetchMessages runs the retrieval pipeline: open the mailbox read-only,
// search with the translated filter, keep the last filter.Limit matches and
// parse each of them. Messages that fail to parse are logged and left out.
func (s *Session) FetchMessages(ctx context.Context, filter models.SearchFilter) ([]models.Message, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultFetchLimit
	}

	var result []models.Message
	err := s.withMailbox(ctx, filter.Mailbox, true, func(c *client.Client, _ *imap.MailboxStatus) error {
		seqNums, err := c.Search(BuildCriteria(TranslateFilter(filter)))
		if err != nil {
			return fmt.Errorf("failed to search messages: %w", err)
		}

		result, err = fetchAndParse(ctx, c, lastN(seqNums, limit))
		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// fetcher is the part of the go-imap client the pipeline needs.
type fetcher interface {
	Fetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
}

// fetchAndParse streams the full bodies of seqNums and parses them.
// It returns only after the FETCH command has completed; a FETCH error fails
// the whole batch.
func fetchAndParse(ctx context.Context, c fetcher, seqNums []uint32) ([]models.Message, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}

	if len(seqNums) == 0 {
		return []models.Message{}, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(seqNums...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{
		section.FetchItem(),
		imap.FetchFlags,
		imap.FetchUid,
	}

	messages := make(chan *imap.Message, parseWorkers)
	done := make(chan error, 1)

	go func() {
		done <- c.Fetch(seqSet, items, messages)
	}()

	result := collectMessages(ctx, messages, section, seqNums)

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// batch correlates fetch responses by sequence number. A server may send a
// message's FLAGS in a different untagged FETCH than its body, so flags are
// kept apart from parsed records and joined at the end.
type batch struct {
	mu       sync.Mutex
	records  map[uint32]*models.Message
	flags    map[uint32][]string
	uids     map[uint32]uint32
	withBody map[uint32]bool
}

func newBatch() *batch {
	return &batch{
		records:  make(map[uint32]*models.Message),
		flags:    make(map[uint32][]string),
		uids:     make(map[uint32]uint32),
		withBody: make(map[uint32]bool),
	}
}

func (b *batch) addFlags(seqNum uint32, flags []string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	existing := b.flags[seqNum]
	for _, flag := range flags {
		if !containsFlag(existing, flag) {
			existing = append(existing, flag)
		}
	}
	b.flags[seqNum] = existing
}

func (b *batch) addUID(seqNum, uid uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uids[seqNum] = uid
}

// claimBody returns false if a body for seqNum was already seen.
func (b *batch) claimBody(seqNum uint32) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.withBody[seqNum] {
		return false
	}
	b.withBody[seqNum] = true
	return true
}

func (b *batch) store(seqNum uint32, msg *models.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records[seqNum] = msg
}

// collectMessages drains the fetch channel, parsing bodies on a bounded
// worker group, and returns the records in the order of seqNums.
// The channel is always drained, even when ctx is done, so the FETCH
// goroutine can finish.
func collectMessages(ctx context.Context, messages <-chan *imap.Message, section *imap.BodySectionName, seqNums []uint32) []models.Message {
	b := newBatch()

	var g errgroup.Group
	g.SetLimit(parseWorkers)

	for imapMsg := range messages {
		if imapMsg == nil {
			continue
		}
		if len(imapMsg.Flags) > 0 {
			b.addFlags(imapMsg.SeqNum, imapMsg.Flags)
		}
		if imapMsg.Uid != 0 {
			b.addUID(imapMsg.SeqNum, imapMsg.Uid)
		}

		body := imapMsg.GetBody(section)
		if body == nil || ctx.Err() != nil || !b.claimBody(imapMsg.SeqNum) {
			continue
		}

		seqNum := imapMsg.SeqNum
		g.Go(func() error {
			msg, err := ParseMessage(body, seqNum)
			if err != nil {
				log.Printf("Warning: Failed to parse message %d, skipping: %v", seqNum, err)
				return nil
			}
			b.store(seqNum, msg)
			return nil
		})
	}
	_ = g.Wait()

	result := make([]models.Message, 0, len(b.records))
	for _, seqNum := range seqNums {
		msg, ok := b.records[seqNum]
		if !ok {
			if !b.withBody[seqNum] {
				log.Printf("Warning: Server returned no body for message %d, skipping", seqNum)
			}
			continue
		}
		if flags := b.flags[seqNum]; flags != nil {
			msg.Flags = flags
		}
		msg.SeqNum = seqNum
		msg.UID = b.uids[seqNum]
		result = append(result, *msg)
	}

	return result
}

func containsFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if f == flag {
			return true
		}
	}
	return false
}
