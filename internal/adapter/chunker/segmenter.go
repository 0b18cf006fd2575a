package chunker

import "strings"

const (
	paragraphSep = "\n\n"
	sentenceSep  = " "
)

// segmenter accumulates fragments into chunks of at most maxSize characters.
//
// The open buffer either holds text that has not been emitted yet (fresh) or
// only an overlap seed copied from the end of the last emitted chunk. A seed
// is never emitted on its own.
type segmenter struct {
	maxSize int
	overlap int

	chunks []string
	buf    strings.Builder
	size   int
	fresh  bool
}

func split(text string, opts Options) []string {
	s := &segmenter{maxSize: opts.MaxSize, overlap: opts.Overlap}
	for _, para := range paragraphs(normalize(text)) {
		if runeLen(para) <= s.maxSize {
			s.appendFragment(para)
			continue
		}
		s.appendOversized(para)
	}
	s.flush()
	return s.chunks
}

// appendFragment merges f (at most maxSize characters) into the open buffer,
// emitting the buffer first when f does not fit.
func (s *segmenter) appendFragment(f string) {
	n := runeLen(f)
	if s.size == 0 {
		s.set(f, n, true)
		return
	}
	if s.size+len(paragraphSep)+n <= s.maxSize {
		s.write(paragraphSep, f, n)
		return
	}

	seed := s.flush()
	seedLen := runeLen(seed)
	if seedLen == 0 {
		s.set(f, n, true)
		return
	}
	s.set(seed, seedLen, false)
	if seedLen+len(paragraphSep)+n <= s.maxSize {
		s.write(paragraphSep, f, n)
		return
	}
	// The seed leaves too little room for f; re-accumulate f sentence by sentence.
	s.appendSentences(sentences(f))
}

// appendOversized subdivides a paragraph longer than maxSize into blocks and
// sentences. Blocks that fit join the rolling buffer like paragraphs do; the
// buffer starts empty after the paragraph.
func (s *segmenter) appendOversized(para string) {
	for _, block := range blocks(para) {
		if runeLen(block) <= s.maxSize {
			s.appendFragment(block)
			continue
		}
		s.carry()
		s.appendSentences(sentences(block))
	}
	s.flush()
	s.reset()
}

// appendSentences greedily packs sentences into the open buffer. Sentences
// longer than maxSize are hard-sliced.
func (s *segmenter) appendSentences(sents []string) {
	for _, sent := range sents {
		n := runeLen(sent)
		if n > s.maxSize {
			s.flush()
			pieces := hardSlice(sent, s.maxSize)
			if len(pieces) == 0 {
				s.reset()
				continue
			}
			s.chunks = append(s.chunks, pieces...)
			seed := lastChars(pieces[len(pieces)-1], s.overlap)
			s.set(seed, runeLen(seed), false)
			continue
		}
		if s.size == 0 {
			s.set(sent, n, true)
			continue
		}
		if s.size+len(sentenceSep)+n <= s.maxSize {
			s.write(sentenceSep, sent, n)
			continue
		}

		seed := s.flush()
		seedLen := runeLen(seed)
		if seedLen > 0 && seedLen+len(sentenceSep)+n <= s.maxSize {
			s.set(seed, seedLen, false)
			s.write(sentenceSep, sent, n)
			continue
		}
		// No room for the seed next to this sentence: drop it to keep making progress.
		s.set(sent, n, true)
	}
}

// flush emits the open buffer if it holds unemitted text, clears it and
// returns the overlap seed for the next buffer.
func (s *segmenter) flush() string {
	if !s.fresh {
		seed := s.buf.String()
		s.reset()
		return seed
	}
	chunk := strings.TrimSpace(s.buf.String())
	s.reset()
	if chunk == "" {
		return ""
	}
	s.chunks = append(s.chunks, chunk)
	return lastChars(chunk, s.overlap)
}

// carry flushes the buffer and keeps its overlap seed open.
func (s *segmenter) carry() {
	seed := s.flush()
	s.set(seed, runeLen(seed), false)
}

func (s *segmenter) set(text string, n int, fresh bool) {
	s.buf.Reset()
	s.buf.WriteString(text)
	s.size = n
	s.fresh = fresh && n > 0
}

func (s *segmenter) write(sep, text string, n int) {
	if s.size > 0 {
		s.buf.WriteString(sep)
		s.size += len(sep)
	}
	s.buf.WriteString(text)
	s.size += n
	s.fresh = true
}

func (s *segmenter) reset() {
	s.buf.Reset()
	s.size = 0
	s.fresh = false
}
