// Package mailbox delivers short notices between shell sessions.
//
// Notices live in the shared coordination state as one bounded FIFO queue
// holding at most [coord.MailboxCapacity] entries. A notice is addressed to
// one session pid or to [Broadcast]. Pushing into a full queue evicts the
// oldest entry.
//
// Delivery is pull-based. A session sees its notices only when it calls
// [Mailbox.Drain], which the interactive shell does before every prompt.
// Drain removes what it returns and leaves notices for other sessions
// queued in their original order.
//
// # Basic Usage
//
//	mb := mailbox.New(store)
//
//	// Tell session 4242 that its file is contended
//	mb.Push(ctx, mailbox.Notification{To: 4242, From: os.Getpid(), Text: "conflict on 'notes.txt'"})
//
//	// Collect everything addressed to this session
//	notices, err := mb.Drain(ctx, os.Getpid())
//
//	// Or deliver notices as they arrive
//	cancel := mb.Watch(ctx, os.Getpid(), func(n mailbox.Notification) {
//	    fmt.Println(mailbox.Format(n))
//	})
//	defer cancel()
package mailbox
