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

// Package token is a PKCS#11 session client for signing tokens such as
// Rutoken. A Session owns one authenticated connection to one slot and
// serializes every device round trip. At most one digest or sign sequence
// may be in flight on a session at any time.
package token

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/miekg/pkcs11"

	"github.com/jeremyhahn/go-signer/pkg/logging"
	"github.com/jeremyhahn/go-signer/pkg/validation"
)

// MaxObjects caps bulk object discovery. Tokens holding more objects of one
// class than this return a truncated result.
const MaxObjects = 100

// Config selects the token slot a session is opened on.
type Config struct {
	// SlotIndex selects a slot by its position in the token-present slot
	// list; nil picks the first slot matching the other criteria
	SlotIndex *int `yaml:"slot_index,omitempty" json:"slot_index,omitempty" mapstructure:"slot_index"`

	// TokenLabel restricts the session to a token with this label
	TokenLabel string `yaml:"token_label,omitempty" json:"token_label,omitempty" mapstructure:"token_label"`

	// TokenSerial restricts the session to a token with this serial number
	TokenSerial string `yaml:"token_serial,omitempty" json:"token_serial,omitempty" mapstructure:"token_serial"`

	// Logger receives session events; nil uses the default logger
	Logger *logging.Logger `yaml:"-" json:"-" mapstructure:"-"`
}

// Session is an authenticated read-write session on one token slot.
type Session struct {
	mu       sync.Mutex
	module   Module
	handle   pkcs11.SessionHandle
	slot     uint
	info     pkcs11.TokenInfo
	loggedIn bool
	active   bool
	closed   bool
	logger   *logging.Logger
}

// Open initializes the library, selects a slot, opens a serial read-write
// session and logs in as the normal user. On failure every stage that
// already succeeded is unwound before the error is returned.
func Open(module Module, config *Config, pin string) (*Session, error) {
	if module == nil {
		return nil, fmt.Errorf("%w: nil module", ErrInvalidConfig)
	}
	if config == nil {
		config = &Config{}
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}

	if err := module.Initialize(); err != nil {
		if rv, ok := ReturnValue(err); !ok || rv != pkcs11.CKR_CRYPTOKI_ALREADY_INITIALIZED {
			module.Destroy()
			return nil, establishmentError("C_Initialize", err)
		}
	}
	unwind := func() {
		if err := module.Finalize(); err != nil {
			logger.Warnf("C_Finalize during cleanup: %v", err)
		}
		module.Destroy()
	}

	slots, err := module.GetSlotList(true)
	if err != nil {
		unwind()
		return nil, establishmentError("C_GetSlotList", err)
	}
	if len(slots) == 0 {
		unwind()
		return nil, establishmentError("C_GetSlotList", ErrNoToken)
	}

	slot, info, err := selectSlot(module, slots, config, logger)
	if err != nil {
		unwind()
		return nil, establishmentError("select slot", err)
	}

	handle, err := module.OpenSession(slot, pkcs11.CKF_SERIAL_SESSION|pkcs11.CKF_RW_SESSION)
	if err != nil {
		unwind()
		return nil, establishmentError("C_OpenSession", err)
	}

	if err := module.Login(handle, pkcs11.CKU_USER, pin); err != nil {
		if rv, ok := ReturnValue(err); !ok || rv != pkcs11.CKR_USER_ALREADY_LOGGED_IN {
			if cerr := module.CloseSession(handle); cerr != nil {
				logger.Warnf("C_CloseSession during cleanup: %v", cerr)
			}
			unwind()
			return nil, establishmentError("C_Login", err)
		}
	}

	logger.Info("token session opened",
		"slot", slot,
		"label", validation.SanitizeForLog(info.Label),
		"serial", validation.SanitizeForLog(info.SerialNumber),
		"model", validation.SanitizeForLog(info.Model))

	return &Session{
		module:   module,
		handle:   handle,
		slot:     slot,
		info:     info,
		loggedIn: true,
		logger:   logger,
	}, nil
}

func establishmentError(op string, err error) error {
	return NewOperationError(op, fmt.Errorf("%w: %w", ErrSessionEstablishment, err))
}

func selectSlot(module Module, slots []uint, config *Config, logger *logging.Logger) (uint, pkcs11.TokenInfo, error) {
	candidates := slots
	if config.SlotIndex != nil {
		idx := *config.SlotIndex
		if idx < 0 || idx >= len(slots) {
			return 0, pkcs11.TokenInfo{}, fmt.Errorf("%w: slot index %d out of range (%d slots)", ErrNoToken, idx, len(slots))
		}
		candidates = slots[idx : idx+1]
	}

	for _, slot := range candidates {
		info, err := module.GetTokenInfo(slot)
		if err != nil {
			logger.Warnf("C_GetTokenInfo on slot %d: %v", slot, err)
			continue
		}
		info.Label = strings.TrimSpace(info.Label)
		info.SerialNumber = strings.TrimSpace(info.SerialNumber)
		info.Model = strings.TrimSpace(info.Model)
		logger.Debugf("slot %d: token %q serial %s", slot,
			validation.SanitizeForLog(info.Label), validation.SanitizeForLog(info.SerialNumber))

		if config.TokenLabel != "" && info.Label != config.TokenLabel {
			continue
		}
		if config.TokenSerial != "" && info.SerialNumber != config.TokenSerial {
			continue
		}
		return slot, info, nil
	}
	return 0, pkcs11.TokenInfo{}, fmt.Errorf("%w: label=%q serial=%q", ErrNoToken, config.TokenLabel, config.TokenSerial)
}

// Slot returns the slot id the session is bound to.
func (s *Session) Slot() uint {
	return s.slot
}

// TokenInfo returns the token description read when the session opened.
func (s *Session) TokenInfo() pkcs11.TokenInfo {
	return s.info
}

// Logger returns the session logger.
func (s *Session) Logger() *logging.Logger {
	return s.logger
}

// Close logs out, closes the session and finalizes the library. Every step
// is attempted even when an earlier one fails; failures are logged and
// returned joined. Close is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.loggedIn {
		if err := s.module.Logout(s.handle); err != nil {
			s.logger.Warnf("C_Logout: %v", err)
			errs = append(errs, NewOperationError("C_Logout", err))
		}
		s.loggedIn = false
	}
	if err := s.module.CloseSession(s.handle); err != nil {
		s.logger.Warnf("C_CloseSession: %v", err)
		errs = append(errs, NewOperationError("C_CloseSession", err))
	}
	if err := s.module.Finalize(); err != nil {
		s.logger.Warnf("C_Finalize: %v", err)
		errs = append(errs, NewOperationError("C_Finalize", err))
	}
	s.module.Destroy()
	s.logger.Debug("token session closed", "slot", s.slot)
	return errors.Join(errs...)
}

// checkOpen must be called with s.mu held.
func (s *Session) checkOpen() error {
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}
