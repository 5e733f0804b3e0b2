package textchunk

// ThreadMarker is appended to the first post of a multi-post thread.
const ThreadMarker = " 🧵"

// ThreadPost is one post of a reply chain. ReplyTo is empty until the
// previous post has been published and its id is bound.
type ThreadPost struct {
	Index           int
	Text            string
	ReplyToPrevious bool
	ReplyTo         string
}

// BuildThread turns ordered chunks into a linear reply chain. A single chunk
// becomes a plain post; with several, the first carries ThreadMarker and
// every later post replies to the one before it.
func BuildThread(chunks []string) []ThreadPost {
	if len(chunks) == 0 {
		return nil
	}
	posts := make([]ThreadPost, len(chunks))
	for i, text := range chunks {
		posts[i] = ThreadPost{Index: i, Text: text, ReplyToPrevious: i > 0}
	}
	if len(posts) > 1 {
		posts[0].Text += ThreadMarker
	}
	return posts
}

// Bind sets the reply target of a post that replies to its predecessor.
func (p *ThreadPost) Bind(previousID string) {
	if p.ReplyToPrevious {
		p.ReplyTo = previousID
	}
}
