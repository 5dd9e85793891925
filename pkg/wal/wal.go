package wal

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
)

// Kind tells whether an entry adds a pending operation or acknowledges it.
type Kind uint8

const (
	KindAdd Kind = iota + 1
	KindAck
)

// Entry is one journal record. Payload is opaque to the log.
type Entry struct {
	SeqNum  uint64
	Kind    Kind
	ID      string
	Payload []byte
}

// WAL is an append-only journal of retry-queue changes. Every Append is
// flushed and fsynced before it returns.
type WAL struct {
	mu       sync.Mutex
	file     *os.File
	writer   *bufio.Writer
	filePath string
	seqNum   uint64
}

// Open opens or creates the journal file at path.
func Open(path string) (*WAL, error) {
	if path == "" {
		return nil, fmt.Errorf("empty WAL path")
	}
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create WAL directory: %w", err)
	}

	w := &WAL{filePath: path}
	if err := w.open(); err != nil {
		return nil, err
	}

	// continue numbering after the last intact entry
	if err := w.replay(func(e Entry) error {
		w.seqNum = e.SeqNum
		return nil
	}); err != nil {
		w.file.Close()
		return nil, fmt.Errorf("failed to scan WAL: %w", err)
	}

	return w, nil
}

func (w *WAL) open() error {
	file, err := os.OpenFile(w.filePath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open WAL file: %w", err)
	}
	w.file = file
	w.writer = bufio.NewWriter(file)
	return nil
}

// Append assigns the next sequence number to e and persists it.
func (w *WAL) Append(e Entry) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.writer == nil {
		return 0, fmt.Errorf("WAL is closed")
	}

	w.seqNum++
	e.SeqNum = w.seqNum
	if err := w.writeEntry(w.writer, e); err != nil {
		return 0, fmt.Errorf("failed to write WAL entry: %w", err)
	}
	if err := w.writer.Flush(); err != nil {
		return 0, fmt.Errorf("failed to flush WAL: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return 0, fmt.Errorf("failed to sync WAL: %w", err)
	}
	return e.SeqNum, nil
}

// Replay calls fn for every intact entry in file order. A torn entry at the
// tail (crash during append) ends the replay without an error.
func (w *WAL) Replay(fn func(Entry) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.writer != nil {
		if err := w.writer.Flush(); err != nil {
			return fmt.Errorf("failed to flush WAL before replay: %w", err)
		}
	}
	return w.replay(fn)
}

func (w *WAL) replay(fn func(Entry) error) error {
	file, err := os.Open(w.filePath)
	if err != nil {
		return fmt.Errorf("failed to open WAL for reading: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			slog.Warn("failed to close WAL read file", "error", cerr)
		}
	}()

	reader := bufio.NewReader(file)
	for {
		entry, err := readEntry(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				slog.Warn("WAL has a torn tail entry, ignoring it", "path", w.filePath)
				return nil
			}
			return fmt.Errorf("failed to read WAL entry: %w", err)
		}
		if err := fn(entry); err != nil {
			return fmt.Errorf("WAL replay callback failed: %w", err)
		}
	}
}

// Rewrite atomically replaces the journal with live, keeping sequence
// numbers monotonic.
func (w *WAL) Rewrite(live []Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	tmpPath := w.filePath + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create WAL rewrite file: %w", err)
	}

	bw := bufio.NewWriter(tmp)
	seq := w.seqNum
	for _, e := range live {
		seq++
		e.SeqNum = seq
		if err := w.writeEntry(bw, e); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write WAL rewrite entry: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush WAL rewrite: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync WAL rewrite: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close WAL rewrite: %w", err)
	}

	if err := w.closeFile(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, w.filePath); err != nil {
		return fmt.Errorf("failed to replace WAL: %w", err)
	}
	w.seqNum = seq
	return w.open()
}

func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeFile()
}

func (w *WAL) closeFile() error {
	if w.writer != nil {
		if err := w.writer.Flush(); err != nil {
			return fmt.Errorf("failed to flush WAL on close: %w", err)
		}
		w.writer = nil
	}
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return fmt.Errorf("failed to close WAL file: %w", err)
		}
		w.file = nil
	}
	return nil
}

// writeEntry frames e as
// seq(8) kind(1) idLen(4) id payloadLen(4) payload crc32(4).
func (w *WAL) writeEntry(dst io.Writer, e Entry) error {
	if len(e.ID) > math.MaxUint32 || len(e.Payload) > math.MaxUint32 {
		return fmt.Errorf("entry too large")
	}

	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, e.SeqNum)
	buf.WriteByte(byte(e.Kind))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(e.ID)))
	buf.WriteString(e.ID)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(e.Payload)))
	buf.Write(e.Payload)
	_ = binary.Write(&buf, binary.LittleEndian, crc32.ChecksumIEEE(buf.Bytes()))

	_, err := dst.Write(buf.Bytes())
	return err
}

func readEntry(r *bufio.Reader) (Entry, error) {
	var (
		e   Entry
		raw bytes.Buffer
		tee = io.TeeReader(r, &raw)
	)

	head := make([]byte, 13)
	if _, err := io.ReadFull(tee, head); err != nil {
		return e, err
	}
	e.SeqNum = binary.LittleEndian.Uint64(head[0:8])
	e.Kind = Kind(head[8])
	idLen := binary.LittleEndian.Uint32(head[9:13])

	id := make([]byte, idLen)
	if _, err := io.ReadFull(tee, id); err != nil {
		return e, unexpected(err)
	}
	e.ID = string(id)

	var payloadLen uint32
	if err := binary.Read(tee, binary.LittleEndian, &payloadLen); err != nil {
		return e, unexpected(err)
	}
	e.Payload = make([]byte, payloadLen)
	if _, err := io.ReadFull(tee, e.Payload); err != nil {
		return e, unexpected(err)
	}

	sum := crc32.ChecksumIEEE(raw.Bytes())
	var stored uint32
	if err := binary.Read(r, binary.LittleEndian, &stored); err != nil {
		return e, unexpected(err)
	}
	if stored != sum {
		return e, fmt.Errorf("checksum mismatch at seq %d", e.SeqNum)
	}
	return e, nil
}

// unexpected turns a clean EOF inside an entry into a torn-entry error.
func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
