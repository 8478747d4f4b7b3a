package codec

// CommandEnvelope pairs a decoded command with the channel it was sent on.
type CommandEnvelope struct {
	Channel Channel
	Command Command
}

// Frame is one UDP datagram's worth of protocol state: a strictly
// increasing per-sender id (doubling as the AEAD nonce), cleartext
// headers, and two ordered command lists.
type Frame struct {
	FrameId    uint64
	Headers    []Header
	Reliable   []CommandEnvelope
	Unreliable []CommandEnvelope
}

// CipherResolver looks up the AEAD cipher for a frame given its decoded
// headers (via the MemberAndRoomIdHeader). Returning an error causes
// decode to fail with that error instead of attempting decryption.
type CipherResolver func(headers []Header) (*Cipher, error)

// EncodeFrame serializes headers in cleartext, encodes and AEAD-encrypts
// the command body, and concatenates the two into one datagram.
func EncodeFrame(f *Frame, c *Cipher) ([]byte, error) {
	if len(f.Headers) > MaxHeaders {
		return nil, ErrTooManyHeaders
	}

	head := &writer{}
	head.u64(f.FrameId)
	head.u8(uint8(len(f.Headers)))
	for _, h := range f.Headers {
		if err := encodeHeader(head, h); err != nil {
			return nil, err
		}
	}
	headerBytes := head.bytesOut()

	body := &writer{}
	if err := encodeCommandList(body, f.Reliable); err != nil {
		return nil, err
	}
	if err := encodeCommandList(body, f.Unreliable); err != nil {
		return nil, err
	}
	plaintext := body.bytesOut()
	if len(plaintext) > FrameBodyCapacity {
		return nil, ErrBodyOverflow
	}

	ciphertext := c.Seal(f.FrameId, headerBytes, plaintext)

	out := make([]byte, 0, len(headerBytes)+len(ciphertext))
	out = append(out, headerBytes...)
	out = append(out, ciphertext...)
	return out, nil
}

func encodeCommandList(w *writer, envs []CommandEnvelope) error {
	w.varint(uint64(len(envs)))
	for _, e := range envs {
		encodeChannel(w, e.Channel)
		if err := encodeCommand(w, e.Command); err != nil {
			return err
		}
	}
	return nil
}

func decodeCommandList(r *reader) ([]CommandEnvelope, error) {
	n, err := r.varint()
	if err != nil {
		return nil, err
	}
	envs := make([]CommandEnvelope, 0, n)
	for i := uint64(0); i < n; i++ {
		ch, err := decodeChannel(r)
		if err != nil {
			return nil, err
		}
		cmd, err := decodeCommand(r)
		if err != nil {
			return nil, err
		}
		envs = append(envs, CommandEnvelope{Channel: ch, Command: cmd})
	}
	return envs, nil
}

// ParseHeaders decodes just the frame id and header list, returning the
// byte offset where the encrypted body begins. Callers that need to
// resolve a cipher from the headers (the network layer, which keeps a
// session table keyed by MemberAndRoomId) use this directly; DecodeFrame
// below is the all-in-one convenience that most call sites want.
func ParseHeaders(data []byte) (frameId uint64, headers []Header, bodyOffset int, err error) {
	r := newReader(data)
	frameId, err = r.u64()
	if err != nil {
		return 0, nil, 0, err
	}
	count, err := r.u8()
	if err != nil {
		return 0, nil, 0, err
	}
	if count > MaxHeaders {
		return 0, nil, 0, ErrTooManyHeaders
	}
	headers = make([]Header, 0, count)
	for i := uint8(0); i < count; i++ {
		h, err := decodeHeader(r)
		if err != nil {
			return 0, nil, 0, err
		}
		headers = append(headers, h)
	}
	return frameId, headers, len(data) - r.remaining(), nil
}

// DecodeFrame parses headers, resolves the AEAD cipher via resolve, then
// decrypts and parses the command body. A failure is ErrTruncated,
// ErrTooManyHeaders, ErrUnknownHeader, ErrDecryptionFailed or
// ErrUnknownCommand, or the error resolve returned.
func DecodeFrame(data []byte, resolve CipherResolver) (*Frame, error) {
	frameId, headers, bodyOffset, err := ParseHeaders(data)
	if err != nil {
		return nil, err
	}
	headerBytes := data[:bodyOffset]
	ciphertext := data[bodyOffset:]

	c, err := resolve(headers)
	if err != nil {
		return nil, err
	}

	plaintext, err := c.Open(frameId, headerBytes, ciphertext)
	if err != nil {
		return nil, err
	}

	r := newReader(plaintext)
	reliable, err := decodeCommandList(r)
	if err != nil {
		return nil, err
	}
	unreliable, err := decodeCommandList(r)
	if err != nil {
		return nil, err
	}

	return &Frame{FrameId: frameId, Headers: headers, Reliable: reliable, Unreliable: unreliable}, nil
}

// MemberAndRoomId is a convenience accessor for pulling the identifying
// header out of a decoded header list.
func MemberAndRoomId(headers []Header) (MemberAndRoomIdHeader, bool) {
	for _, h := range headers {
		if v, ok := h.(MemberAndRoomIdHeader); ok {
			return v, true
		}
	}
	return MemberAndRoomIdHeader{}, false
}
