// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-signer.
//
// go-signer is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package mocks provides an in-memory PKCS#11 token implementing
// token.Module. It performs real digests and signatures in software and
// enforces the Cryptoki operation state rules a hardware token does, so
// session protocol errors surface in tests.
package mocks

import (
	"bytes"
	"crypto"
	"crypto/md5"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"encoding/asn1"
	"hash"
	"math/big"
	"sort"
	"sync"

	"github.com/miekg/pkcs11"
	"go.cypherpunks.ru/gogost/v5/gost28147"
	"go.cypherpunks.ru/gogost/v5/gost341194"
	"go.cypherpunks.ru/gogost/v5/gost34112012256"
	"go.cypherpunks.ru/gogost/v5/gost34112012512"
	"golang.org/x/crypto/ripemd160"

	"github.com/jeremyhahn/go-signer/pkg/algorithm"
	"github.com/jeremyhahn/go-signer/pkg/gost"
)

// Object is a token object: its attributes plus, for private keys, the
// software key used to sign.
type Object struct {
	Attributes map[uint][]byte
	Key        any
}

type session struct {
	slot     uint
	loggedIn bool

	findActive bool
	found      []pkcs11.ObjectHandle

	digest hash.Hash

	signActive bool
	signMech   uint
	signKey    *Object
}

// Module is an in-memory token.
//
// Example usage:
//
//	m := mocks.New("1234")
//	m.AddIdentity([]byte{1}, "signer", cert, key)
//	s, err := token.Open(m, nil, "1234")
type Module struct {
	mu sync.Mutex

	// PIN is the user PIN accepted by Login
	PIN string

	// Slots lists the token-present slots
	Slots []uint

	// Tokens describes the token in each slot; slots without an entry
	// report a default description
	Tokens map[uint]pkcs11.TokenInfo

	// Fail injects an error for the named method, e.g. "Login"
	Fail map[string]error

	// Call tracking
	Calls       []string
	DigestInits []*pkcs11.Mechanism
	Signed      [][]byte
	Destroyed   bool

	initialized bool
	objects     map[pkcs11.ObjectHandle]*Object
	nextObject  pkcs11.ObjectHandle
	sessions    map[pkcs11.SessionHandle]*session
	nextSession pkcs11.SessionHandle
}

// New returns a token in slot 1 protected by pin.
func New(pin string) *Module {
	return &Module{
		PIN:         pin,
		Slots:       []uint{1},
		Tokens:      map[uint]pkcs11.TokenInfo{},
		Fail:        map[string]error{},
		objects:     map[pkcs11.ObjectHandle]*Object{},
		nextObject:  1,
		sessions:    map[pkcs11.SessionHandle]*session{},
		nextSession: 1,
	}
}

func rv(code uint) error {
	return pkcs11.Error(code)
}

// enter records the call and returns an injected failure, if any.
// Callers hold m.mu.
func (m *Module) enter(method string) error {
	m.Calls = append(m.Calls, method)
	if err, ok := m.Fail[method]; ok {
		return err
	}
	return nil
}

func (m *Module) lookupSession(sh pkcs11.SessionHandle) (*session, error) {
	if !m.initialized {
		return nil, rv(pkcs11.CKR_CRYPTOKI_NOT_INITIALIZED)
	}
	s, ok := m.sessions[sh]
	if !ok {
		return nil, rv(pkcs11.CKR_SESSION_HANDLE_INVALID)
	}
	return s, nil
}

// Called reports whether method was invoked.
func (m *Module) Called(method string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.Calls {
		if c == method {
			return true
		}
	}
	return false
}

// OpenSessions returns the number of sessions not yet closed.
func (m *Module) OpenSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Initialized reports whether the library is initialized.
func (m *Module) Initialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}

func (m *Module) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Initialize"); err != nil {
		return err
	}
	if m.initialized {
		return rv(pkcs11.CKR_CRYPTOKI_ALREADY_INITIALIZED)
	}
	m.initialized = true
	return nil
}

func (m *Module) Finalize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Finalize"); err != nil {
		return err
	}
	if !m.initialized {
		return rv(pkcs11.CKR_CRYPTOKI_NOT_INITIALIZED)
	}
	m.initialized = false
	m.sessions = map[pkcs11.SessionHandle]*session{}
	return nil
}

func (m *Module) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "Destroy")
	m.Destroyed = true
}

func (m *Module) GetSlotList(tokenPresent bool) ([]uint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetSlotList"); err != nil {
		return nil, err
	}
	if !m.initialized {
		return nil, rv(pkcs11.CKR_CRYPTOKI_NOT_INITIALIZED)
	}
	return append([]uint(nil), m.Slots...), nil
}

func (m *Module) GetTokenInfo(slotID uint) (pkcs11.TokenInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetTokenInfo"); err != nil {
		return pkcs11.TokenInfo{}, err
	}
	if !m.hasSlot(slotID) {
		return pkcs11.TokenInfo{}, rv(pkcs11.CKR_SLOT_ID_INVALID)
	}
	if info, ok := m.Tokens[slotID]; ok {
		return info, nil
	}
	return pkcs11.TokenInfo{
		Label:          "mock token",
		ManufacturerID: "go-signer",
		Model:          "mock",
		SerialNumber:   "0000000000000001",
	}, nil
}

func (m *Module) hasSlot(slotID uint) bool {
	for _, s := range m.Slots {
		if s == slotID {
			return true
		}
	}
	return false
}

func (m *Module) OpenSession(slotID uint, flags uint) (pkcs11.SessionHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("OpenSession"); err != nil {
		return 0, err
	}
	if !m.initialized {
		return 0, rv(pkcs11.CKR_CRYPTOKI_NOT_INITIALIZED)
	}
	if !m.hasSlot(slotID) {
		return 0, rv(pkcs11.CKR_SLOT_ID_INVALID)
	}
	if flags&pkcs11.CKF_SERIAL_SESSION == 0 {
		return 0, rv(pkcs11.CKR_SESSION_PARALLEL_NOT_SUPPORTED)
	}
	sh := m.nextSession
	m.nextSession++
	m.sessions[sh] = &session{slot: slotID}
	return sh, nil
}

func (m *Module) CloseSession(sh pkcs11.SessionHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CloseSession"); err != nil {
		return err
	}
	if _, err := m.lookupSession(sh); err != nil {
		return err
	}
	delete(m.sessions, sh)
	return nil
}

func (m *Module) Login(sh pkcs11.SessionHandle, userType uint, pin string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Login"); err != nil {
		return err
	}
	s, err := m.lookupSession(sh)
	if err != nil {
		return err
	}
	if userType != pkcs11.CKU_USER {
		return rv(pkcs11.CKR_USER_TYPE_INVALID)
	}
	if s.loggedIn {
		return rv(pkcs11.CKR_USER_ALREADY_LOGGED_IN)
	}
	if pin != m.PIN {
		return rv(pkcs11.CKR_PIN_INCORRECT)
	}
	s.loggedIn = true
	return nil
}

func (m *Module) Logout(sh pkcs11.SessionHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Logout"); err != nil {
		return err
	}
	s, err := m.lookupSession(sh)
	if err != nil {
		return err
	}
	if !s.loggedIn {
		return rv(pkcs11.CKR_USER_NOT_LOGGED_IN)
	}
	s.loggedIn = false
	return nil
}

func (m *Module) FindObjectsInit(sh pkcs11.SessionHandle, temp []*pkcs11.Attribute) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("FindObjectsInit"); err != nil {
		return err
	}
	s, err := m.lookupSession(sh)
	if err != nil {
		return err
	}
	if s.findActive {
		return rv(pkcs11.CKR_OPERATION_ACTIVE)
	}

	var found []pkcs11.ObjectHandle
	for h, obj := range m.objects {
		if obj.Key != nil && !s.loggedIn {
			continue
		}
		if matches(obj, temp) {
			found = append(found, h)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i] < found[j] })
	s.findActive = true
	s.found = found
	return nil
}

func matches(obj *Object, temp []*pkcs11.Attribute) bool {
	for _, a := range temp {
		v, ok := obj.Attributes[a.Type]
		if !ok || !bytes.Equal(v, a.Value) {
			return false
		}
	}
	return true
}

func (m *Module) FindObjects(sh pkcs11.SessionHandle, max int) ([]pkcs11.ObjectHandle, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("FindObjects"); err != nil {
		return nil, false, err
	}
	s, err := m.lookupSession(sh)
	if err != nil {
		return nil, false, err
	}
	if !s.findActive {
		return nil, false, rv(pkcs11.CKR_OPERATION_NOT_INITIALIZED)
	}
	n := len(s.found)
	if max < n {
		n = max
	}
	out := s.found[:n]
	s.found = s.found[n:]
	return out, false, nil
}

func (m *Module) FindObjectsFinal(sh pkcs11.SessionHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("FindObjectsFinal"); err != nil {
		return err
	}
	s, err := m.lookupSession(sh)
	if err != nil {
		return err
	}
	if !s.findActive {
		return rv(pkcs11.CKR_OPERATION_NOT_INITIALIZED)
	}
	s.findActive = false
	s.found = nil
	return nil
}

func (m *Module) GetAttributeValue(sh pkcs11.SessionHandle, o pkcs11.ObjectHandle, a []*pkcs11.Attribute) ([]*pkcs11.Attribute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetAttributeValue"); err != nil {
		return nil, err
	}
	if _, err := m.lookupSession(sh); err != nil {
		return nil, err
	}
	obj, ok := m.objects[o]
	if !ok {
		return nil, rv(pkcs11.CKR_OBJECT_HANDLE_INVALID)
	}
	out := make([]*pkcs11.Attribute, len(a))
	for i, attr := range a {
		if obj.Key != nil && attr.Type == pkcs11.CKA_VALUE {
			return nil, rv(pkcs11.CKR_ATTRIBUTE_SENSITIVE)
		}
		v, ok := obj.Attributes[attr.Type]
		if !ok {
			return nil, rv(pkcs11.CKR_ATTRIBUTE_TYPE_INVALID)
		}
		out[i] = &pkcs11.Attribute{Type: attr.Type, Value: append([]byte{}, v...)}
	}
	return out, nil
}

func (m *Module) DigestInit(sh pkcs11.SessionHandle, mechs []*pkcs11.Mechanism) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DigestInit"); err != nil {
		return err
	}
	s, err := m.lookupSession(sh)
	if err != nil {
		return err
	}
	if s.digest != nil {
		return rv(pkcs11.CKR_OPERATION_ACTIVE)
	}
	if len(mechs) != 1 {
		return rv(pkcs11.CKR_MECHANISM_INVALID)
	}
	h, err := newHash(mechs[0])
	if err != nil {
		return err
	}
	m.DigestInits = append(m.DigestInits, mechs[0])
	s.digest = h
	return nil
}

func (m *Module) DigestUpdate(sh pkcs11.SessionHandle, message []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lookupSession(sh)
	if err != nil {
		return err
	}
	if err := m.enter("DigestUpdate"); err != nil {
		s.digest = nil
		return err
	}
	if s.digest == nil {
		return rv(pkcs11.CKR_OPERATION_NOT_INITIALIZED)
	}
	s.digest.Write(message)
	return nil
}

func (m *Module) DigestFinal(sh pkcs11.SessionHandle) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lookupSession(sh)
	if err != nil {
		return nil, err
	}
	if err := m.enter("DigestFinal"); err != nil {
		s.digest = nil
		return nil, err
	}
	if s.digest == nil {
		return nil, rv(pkcs11.CKR_OPERATION_NOT_INITIALIZED)
	}
	sum := s.digest.Sum(nil)
	s.digest = nil
	return sum, nil
}

func (m *Module) SignInit(sh pkcs11.SessionHandle, mechs []*pkcs11.Mechanism, o pkcs11.ObjectHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("SignInit"); err != nil {
		return err
	}
	s, err := m.lookupSession(sh)
	if err != nil {
		return err
	}
	if s.signActive {
		return rv(pkcs11.CKR_OPERATION_ACTIVE)
	}
	if !s.loggedIn {
		return rv(pkcs11.CKR_USER_NOT_LOGGED_IN)
	}
	obj, ok := m.objects[o]
	if !ok || obj.Key == nil {
		return rv(pkcs11.CKR_KEY_HANDLE_INVALID)
	}
	if len(mechs) != 1 || len(mechs[0].Parameter) != 0 {
		return rv(pkcs11.CKR_MECHANISM_PARAM_INVALID)
	}
	mech := mechs[0].Mechanism
	switch key := obj.Key.(type) {
	case *rsa.PrivateKey:
		if mech != pkcs11.CKM_RSA_PKCS {
			return rv(pkcs11.CKR_KEY_TYPE_INCONSISTENT)
		}
	case *gost.PrivateKey:
		want := uint(pkcs11.CKM_GOSTR3410)
		if key.Algorithm.Equal(gost.OIDPublicKey2012512) {
			want = algorithm.CKM_GOSTR3410_512
		}
		if mech != want {
			return rv(pkcs11.CKR_KEY_TYPE_INCONSISTENT)
		}
	default:
		return rv(pkcs11.CKR_KEY_TYPE_INCONSISTENT)
	}
	s.signActive = true
	s.signMech = mech
	s.signKey = obj
	return nil
}

func (m *Module) Sign(sh pkcs11.SessionHandle, message []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lookupSession(sh)
	if err != nil {
		return nil, err
	}
	if !s.signActive {
		return nil, rv(pkcs11.CKR_OPERATION_NOT_INITIALIZED)
	}
	key := s.signKey
	s.signActive = false
	s.signKey = nil
	if err := m.enter("Sign"); err != nil {
		return nil, err
	}
	m.Signed = append(m.Signed, append([]byte{}, message...))

	switch k := key.Key.(type) {
	case *rsa.PrivateKey:
		sig, err := rsa.SignPKCS1v15(nil, k, crypto.Hash(0), message)
		if err != nil {
			return nil, rv(pkcs11.CKR_DATA_LEN_RANGE)
		}
		return sig, nil
	case *gost.PrivateKey:
		if len(message) != len(k.Raw()) {
			return nil, rv(pkcs11.CKR_DATA_LEN_RANGE)
		}
		sig, err := k.Sign(rand.Reader, message)
		if err != nil {
			return nil, rv(pkcs11.CKR_FUNCTION_FAILED)
		}
		return sig, nil
	}
	return nil, rv(pkcs11.CKR_KEY_TYPE_INCONSISTENT)
}

func newHash(mech *pkcs11.Mechanism) (hash.Hash, error) {
	gostParams := func(oid asn1.ObjectIdentifier) error {
		if len(mech.Parameter) == 0 {
			return nil
		}
		der, _ := asn1.Marshal(oid)
		if !bytes.Equal(der, mech.Parameter) {
			return rv(pkcs11.CKR_MECHANISM_PARAM_INVALID)
		}
		return nil
	}

	switch mech.Mechanism {
	case pkcs11.CKM_GOSTR3411:
		if err := gostParams(algorithm.OIDGOSTR341194ParamSet); err != nil {
			return nil, err
		}
		return gost341194.New(&gost28147.SboxIdGostR341194CryptoProParamSet), nil
	case algorithm.CKM_GOSTR3411_12_256:
		if err := gostParams(algorithm.OIDGOSTR34112012256); err != nil {
			return nil, err
		}
		return gost34112012256.New(), nil
	case algorithm.CKM_GOSTR3411_12_512:
		if err := gostParams(algorithm.OIDGOSTR34112012512); err != nil {
			return nil, err
		}
		return gost34112012512.New(), nil
	}

	if len(mech.Parameter) != 0 {
		return nil, rv(pkcs11.CKR_MECHANISM_PARAM_INVALID)
	}
	switch mech.Mechanism {
	case pkcs11.CKM_SHA_1:
		return sha1.New(), nil
	case pkcs11.CKM_SHA224:
		return sha256.New224(), nil
	case pkcs11.CKM_SHA256:
		return sha256.New(), nil
	case pkcs11.CKM_SHA384:
		return sha512.New384(), nil
	case pkcs11.CKM_SHA512:
		return sha512.New(), nil
	case pkcs11.CKM_MD5:
		return md5.New(), nil
	case pkcs11.CKM_RIPEMD160:
		return ripemd160.New(), nil
	}
	return nil, rv(pkcs11.CKR_MECHANISM_INVALID)
}

func (m *Module) add(obj *Object) pkcs11.ObjectHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.nextObject
	m.nextObject++
	m.objects[h] = obj
	return h
}

func attrs(template ...*pkcs11.Attribute) map[uint][]byte {
	out := make(map[uint][]byte, len(template))
	for _, a := range template {
		out[a.Type] = a.Value
	}
	return out
}

// AddObject stores an object with the given attributes.
func (m *Module) AddObject(template ...*pkcs11.Attribute) pkcs11.ObjectHandle {
	return m.add(&Object{Attributes: attrs(template...)})
}

// AddCertificate stores an X.509 certificate object.
func (m *Module) AddCertificate(id []byte, label string, der []byte) pkcs11.ObjectHandle {
	return m.AddObject(
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_CERTIFICATE),
		pkcs11.NewAttribute(pkcs11.CKA_CERTIFICATE_TYPE, pkcs11.CKC_X_509),
		pkcs11.NewAttribute(pkcs11.CKA_ID, id),
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, label),
		pkcs11.NewAttribute(pkcs11.CKA_VALUE, der),
	)
}

// AddRSAKeyPair stores public and private RSA key objects sharing id.
func (m *Module) AddRSAKeyPair(id []byte, key *rsa.PrivateKey) (pub, priv pkcs11.ObjectHandle) {
	pub = m.AddObject(
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PUBLIC_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, pkcs11.CKK_RSA),
		pkcs11.NewAttribute(pkcs11.CKA_ID, id),
		pkcs11.NewAttribute(pkcs11.CKA_MODULUS, key.N.Bytes()),
		pkcs11.NewAttribute(pkcs11.CKA_PUBLIC_EXPONENT, big.NewInt(int64(key.E)).Bytes()),
	)
	priv = m.add(&Object{
		Attributes: attrs(
			pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PRIVATE_KEY),
			pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, pkcs11.CKK_RSA),
			pkcs11.NewAttribute(pkcs11.CKA_ID, id),
		),
		Key: key,
	})
	return pub, priv
}

// AddGOSTKeyPair stores public and private GOST R 34.10 key objects
// sharing id.
func (m *Module) AddGOSTKeyPair(id []byte, key *gost.PrivateKey) (pub, priv pkcs11.ObjectHandle) {
	pk, err := key.Public()
	if err != nil {
		panic(err)
	}
	params, _ := asn1.Marshal(key.ParamSet)
	pub = m.AddObject(
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PUBLIC_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, pkcs11.CKK_GOSTR3410),
		pkcs11.NewAttribute(pkcs11.CKA_ID, id),
		pkcs11.NewAttribute(pkcs11.CKA_VALUE, pk.Raw()),
		pkcs11.NewAttribute(pkcs11.CKA_GOSTR3410_PARAMS, params),
	)
	priv = m.add(&Object{
		Attributes: attrs(
			pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PRIVATE_KEY),
			pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, pkcs11.CKK_GOSTR3410),
			pkcs11.NewAttribute(pkcs11.CKA_ID, id),
		),
		Key: key,
	})
	return pub, priv
}

// AddIdentity stores a certificate and its key pair under one CKA_ID.
// key is an *rsa.PrivateKey or a *gost.PrivateKey.
func (m *Module) AddIdentity(id []byte, label string, cert *x509.Certificate, key any) (priv pkcs11.ObjectHandle) {
	m.AddCertificate(id, label, cert.Raw)
	switch k := key.(type) {
	case *rsa.PrivateKey:
		_, priv = m.AddRSAKeyPair(id, k)
	case *gost.PrivateKey:
		_, priv = m.AddGOSTKeyPair(id, k)
	default:
		panic("mocks: unsupported key type")
	}
	return priv
}
