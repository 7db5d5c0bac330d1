package backup

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// The envelope matches `openssl enc -aes-256-cbc -salt -pbkdf2`, so an archive
// can be decrypted without devsetup:
//
//	openssl enc -d -aes-256-cbc -pbkdf2 -in home-dirs.tar.gz.enc -out home-dirs.tar.gz
const (
	saltMagic  = "Salted__"
	saltLen    = 8
	iterations = 10000
	keyLen     = 32
	chunkSize  = 64 * 1024 // multiple of aes.BlockSize
)

var (
	// ErrNotEncrypted is returned when the input lacks the salted header.
	ErrNotEncrypted = errors.New("not an encrypted archive")
	// ErrBadDecrypt is returned for a wrong password or a damaged file.
	ErrBadDecrypt = errors.New("bad decrypt: wrong password or corrupted archive")
)

func deriveKey(password, salt []byte) (key, iv []byte) {
	dk := pbkdf2.Key(password, salt, iterations, keyLen+aes.BlockSize, sha256.New)
	return dk[:keyLen], dk[keyLen:]
}

// Encrypt streams src into dst as AES-256-CBC with PKCS#7 padding.
func Encrypt(dst io.Writer, src io.Reader, password []byte) error {
	if len(password) == 0 {
		return errors.New("empty encryption password")
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}
	key, iv := deriveKey(password, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	mode := cipher.NewCBCEncrypter(block, iv)

	if _, err := io.WriteString(dst, saltMagic); err != nil {
		return err
	}
	if _, err := dst.Write(salt); err != nil {
		return err
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := io.ReadFull(src, buf)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			last := pad(buf[:n])
			mode.CryptBlocks(last, last)
			_, werr := dst.Write(last)
			return werr
		}
		if err != nil {
			return err
		}
		mode.CryptBlocks(buf, buf)
		if _, err := dst.Write(buf); err != nil {
			return err
		}
	}
}

// Decrypt reverses Encrypt. The final block is held back until the end of the
// input so the padding can be checked and stripped.
func Decrypt(dst io.Writer, src io.Reader, password []byte) error {
	header := make([]byte, len(saltMagic)+saltLen)
	if _, err := io.ReadFull(src, header); err != nil {
		return ErrNotEncrypted
	}
	if string(header[:len(saltMagic)]) != saltMagic {
		return ErrNotEncrypted
	}
	key, iv := deriveKey(password, header[len(saltMagic):])
	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	mode := cipher.NewCBCDecrypter(block, iv)

	buf := make([]byte, chunkSize)
	var held []byte
	for {
		n, err := io.ReadFull(src, buf)
		if n%aes.BlockSize != 0 {
			return ErrBadDecrypt
		}
		if n > 0 {
			mode.CryptBlocks(buf[:n], buf[:n])
			if held != nil {
				if _, werr := dst.Write(held); werr != nil {
					return werr
				}
			}
			if _, werr := dst.Write(buf[:n-aes.BlockSize]); werr != nil {
				return werr
			}
			held = bytes.Clone(buf[n-aes.BlockSize : n])
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return err
		}
	}

	if held == nil {
		return ErrBadDecrypt
	}
	plain, err := unpad(held)
	if err != nil {
		return err
	}
	_, err = dst.Write(plain)
	return err
}

func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	out := make([]byte, len(b)+n)
	copy(out, b)
	for i := len(b); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

func unpad(block []byte) ([]byte, error) {
	n := int(block[len(block)-1])
	if n == 0 || n > aes.BlockSize {
		return nil, ErrBadDecrypt
	}
	for _, b := range block[len(block)-n:] {
		if int(b) != n {
			return nil, ErrBadDecrypt
		}
	}
	return block[:len(block)-n], nil
}
