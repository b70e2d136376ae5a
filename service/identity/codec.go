package identity

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"strings"

	errs "WPProject/tools/errs"
)

// Identity 一次排队请求的来源三元组，只在请求生命周期内存在；
// 落到存储里的只有 fingerprint 与 handle。
type Identity struct {
	ContentID   string
	UserID      string
	DeviceToken string
}

func (id Identity) Validate() error {
	if id.ContentID == "" || id.UserID == "" {
		return errs.ErrValidation.WrapMsg("content_id and user_id required")
	}
	if id.DeviceToken == "" {
		return errs.ErrValidation.WrapMsg("missing device identifier")
	}
	return nil
}

// triple 空格连接三个字段，字段先做 query 转义保证无损：
// 原始值里的空格不会和分隔符混淆，"a b" 和 "a_b" 是两个不同身份。
func (id Identity) triple() string {
	return url.QueryEscape(id.ContentID) + " " + url.QueryEscape(id.UserID) + " " + url.QueryEscape(id.DeviceToken)
}

func fromTriple(s string) (Identity, bool) {
	parts := strings.SplitN(s, " ", 3)
	if len(parts) != 3 {
		return Identity{}, false
	}
	contentID, err1 := url.QueryUnescape(parts[0])
	userID, err2 := url.QueryUnescape(parts[1])
	deviceToken, err3 := url.QueryUnescape(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return Identity{}, false
	}
	return Identity{ContentID: contentID, UserID: userID, DeviceToken: deviceToken}, true
}

// Codec 拆成两个原语：
//   - Fingerprint：确定性摘要，只用于去重比较
//   - Encode/Decode：可逆 handle，只用于路由（允许随机化）
//
// 两者不能互换，可逆加密带随机 nonce 时摘要不稳定。
type Codec struct {
	fpKey     []byte
	handleKey []byte // 32 字节，AES-256
}

func NewCodec(fingerprintKey string, handleKeyHex string) (*Codec, error) {
	key, err := hex.DecodeString(handleKeyHex)
	if err != nil {
		return nil, errs.WrapMsg(err, "handle key must be hex")
	}
	if len(key) != 32 {
		return nil, errs.New("handle key must be 32 bytes", "got", len(key))
	}
	if fingerprintKey == "" {
		return nil, errs.New("fingerprint key required")
	}
	return &Codec{fpKey: []byte(fingerprintKey), handleKey: key}, nil
}

// Fingerprint HMAC-SHA256(triple)，同输入恒同输出，跨进程稳定
func (c *Codec) Fingerprint(id Identity) string {
	mac := hmac.New(sha256.New, c.fpKey)
	mac.Write([]byte(id.triple()))
	return hex.EncodeToString(mac.Sum(nil))
}

// Encode AES-256-GCM，nonce 随机并前置到密文
func (c *Codec) Encode(id Identity) (string, error) {
	block, err := aes.NewCipher(c.handleKey)
	if err != nil {
		return "", errs.Wrap(err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", errs.Wrap(err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", errs.Wrap(err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(id.triple()), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decode handle 来自客户端，任何解不开的输入都按 ErrMalformedHandle 处理
func (c *Codec) Decode(handle string) (Identity, error) {
	raw, err := base64.RawURLEncoding.DecodeString(handle)
	if err != nil {
		return Identity{}, errs.ErrMalformedHandle.WrapMsg("bad encoding")
	}
	block, err := aes.NewCipher(c.handleKey)
	if err != nil {
		return Identity{}, errs.Wrap(err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return Identity{}, errs.Wrap(err)
	}
	if len(raw) < gcm.NonceSize() {
		return Identity{}, errs.ErrMalformedHandle.WrapMsg("too short")
	}
	nonce, sealed := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return Identity{}, errs.ErrMalformedHandle.WrapMsg("decrypt failed")
	}
	id, ok := fromTriple(string(plain))
	if !ok {
		return Identity{}, errs.ErrMalformedHandle.WrapMsg("bad payload")
	}
	return id, nil
}

// DecodeContentID 路由场景只关心 content_id
func (c *Codec) DecodeContentID(handle string) (string, error) {
	id, err := c.Decode(handle)
	if err != nil {
		return "", err
	}
	return id.ContentID, nil
}
