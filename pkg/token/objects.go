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

package token

import (
	"bytes"
	"fmt"

	"github.com/miekg/pkcs11"
)

// FindObject returns the first object matching template.
func (s *Session) FindObject(template []*pkcs11.Attribute) (pkcs11.ObjectHandle, error) {
	handles, err := s.FindObjects(template, 1)
	if err != nil {
		return 0, err
	}
	if len(handles) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrObjectNotFound, describeTemplate(template))
	}
	return handles[0], nil
}

// FindObjects returns up to max objects matching template. A max outside
// 1..MaxObjects is clamped to MaxObjects.
func (s *Session) FindObjects(template []*pkcs11.Attribute, max int) ([]pkcs11.ObjectHandle, error) {
	if max <= 0 || max > MaxObjects {
		max = MaxObjects
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	if err := s.module.FindObjectsInit(s.handle, template); err != nil {
		return nil, deviceError("C_FindObjectsInit", err)
	}
	defer func() {
		if err := s.module.FindObjectsFinal(s.handle); err != nil {
			s.logger.Warnf("C_FindObjectsFinal: %v", err)
		}
	}()

	handles, _, err := s.module.FindObjects(s.handle, max)
	if err != nil {
		return nil, deviceError("C_FindObjects", err)
	}
	return handles, nil
}

// Attributes reads the values of types from object o. The underlying call
// sizes every value before fetching it. An attribute the object does not
// carry is reported as ErrObjectNotFound.
func (s *Session) Attributes(o pkcs11.ObjectHandle, types ...uint) (map[uint][]byte, error) {
	template := make([]*pkcs11.Attribute, len(types))
	for i, typ := range types {
		template[i] = pkcs11.NewAttribute(typ, nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	attrs, err := s.module.GetAttributeValue(s.handle, o, template)
	if err != nil {
		if rv, ok := ReturnValue(err); ok && rv == pkcs11.CKR_ATTRIBUTE_TYPE_INVALID {
			return nil, NewOperationError("C_GetAttributeValue", fmt.Errorf("%w: %w", ErrObjectNotFound, err))
		}
		return nil, deviceError("C_GetAttributeValue", err)
	}

	values := make(map[uint][]byte, len(attrs))
	for _, a := range attrs {
		if a.Value == nil {
			return nil, fmt.Errorf("%w: attribute 0x%x on object %d", ErrObjectNotFound, a.Type, o)
		}
		values[a.Type] = a.Value
	}
	return values, nil
}

// Attribute reads a single attribute value.
func (s *Session) Attribute(o pkcs11.ObjectHandle, typ uint) ([]byte, error) {
	values, err := s.Attributes(o, typ)
	if err != nil {
		return nil, err
	}
	return values[typ], nil
}

// Certificate is an X.509 certificate object stored on the token.
type Certificate struct {
	Handle pkcs11.ObjectHandle
	ID     []byte
	Label  string
	Value  []byte
}

func certificateTemplate() []*pkcs11.Attribute {
	return []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_CERTIFICATE),
		pkcs11.NewAttribute(pkcs11.CKA_CERTIFICATE_TYPE, pkcs11.CKC_X_509),
	}
}

// Certificates returns the X.509 certificates on the token, at most
// MaxObjects of them.
func (s *Session) Certificates() ([]*Certificate, error) {
	handles, err := s.FindObjects(certificateTemplate(), MaxObjects)
	if err != nil {
		return nil, err
	}
	certs := make([]*Certificate, 0, len(handles))
	for _, h := range handles {
		cert, err := s.readCertificate(h)
		if err != nil {
			return nil, err
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

// FindCertificate returns the certificate whose CKA_ID equals id.
func (s *Session) FindCertificate(id []byte) (*Certificate, error) {
	template := append(certificateTemplate(), pkcs11.NewAttribute(pkcs11.CKA_ID, id))
	h, err := s.FindObject(template)
	if err != nil {
		return nil, err
	}
	return s.readCertificate(h)
}

func (s *Session) readCertificate(h pkcs11.ObjectHandle) (*Certificate, error) {
	values, err := s.Attributes(h, pkcs11.CKA_VALUE, pkcs11.CKA_ID)
	if err != nil {
		return nil, err
	}
	cert := &Certificate{
		Handle: h,
		ID:     values[pkcs11.CKA_ID],
		Value:  values[pkcs11.CKA_VALUE],
	}
	// labels are optional
	if label, err := s.Attribute(h, pkcs11.CKA_LABEL); err == nil {
		cert.Label = string(label)
	}
	return cert, nil
}

var classNames = map[uint]string{
	pkcs11.CKO_CERTIFICATE: "certificate",
	pkcs11.CKO_PUBLIC_KEY:  "public key",
	pkcs11.CKO_PRIVATE_KEY: "private key",
}

func describeTemplate(template []*pkcs11.Attribute) string {
	for _, a := range template {
		if a.Type != pkcs11.CKA_CLASS {
			continue
		}
		for class, name := range classNames {
			if bytes.Equal(a.Value, pkcs11.NewAttribute(pkcs11.CKA_CLASS, class).Value) {
				return name
			}
		}
	}
	return fmt.Sprintf("template with %d attributes", len(template))
}
