// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JUCI Contributors

package plugin

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"

	"github.com/mkschreder/jucid/internal/plugin/engine"
	"github.com/mkschreder/jucid/pkg/blob"
)

// Messages placed in error results.
const (
	MsgStateCorrupted = "state corrupted"
	MsgNotAFunction   = "Not a function"
)

// Call invokes method on the loaded module with args (nil for an empty
// table) and appends the outcome to out as a single top-level key:
//
//	result: the method's returned table, or {} for non-table, non-number returns
//	error:  {code: N} when the method returned the number N
//	error:  {str: "...", code: N} when the call could not be made or raised
//
// Every failure after the object is known to be loaded writes an error
// result and also returns an error. A nil, closed or unloaded object returns
// NOT_LOADED without writing anything.
func (o *Object) Call(ctx context.Context, sess engine.Session, method string, args *blob.Field, out *blob.Builder) error {
	if o == nil {
		return oops.In("plugin").Code(CodeNotLoaded).New("plugin object is nil")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed || o.engine == nil || !o.loaded {
		return oops.In("plugin").Code(CodeNotLoaded).With("plugin", o.name).With("method", method).New("plugin is not loaded")
	}

	o.engine.BindSession(sess)
	defer o.engine.BindSession(nil)

	if o.module.Kind() != engine.KindTable {
		slog.Error("plugin state is broken, module is not a table",
			"plugin", o.name,
			"kind", o.module.Kind().String())
		putError(out, MsgStateCorrupted, o.module.Integer())
		return oops.In("plugin").Code(CodeStateCorrupted).With("plugin", o.name).With("method", method).New(MsgStateCorrupted)
	}

	fn := o.engine.Field(o.module, method)
	if fn.Kind() != engine.KindFunction {
		slog.Warn("cannot call plugin method, field is not a function",
			"plugin", o.name,
			"method", method,
			"kind", fn.Kind().String())
		putError(out, MsgNotAFunction, fn.Integer())
		return oops.In("plugin").Code(CodeNotAFunction).With("plugin", o.name).With("method", method).New(MsgNotAFunction)
	}

	ret, err := o.engine.Invoke(ctx, fn, args)
	if err != nil {
		msg, code := err.Error(), int64(0)
		var se *engine.Error
		if errors.As(err, &se) {
			msg, code = se.Message, se.Value.Integer()
		}
		slog.Warn("plugin method raised an error",
			"plugin", o.name,
			"method", method,
			"error", msg)
		putError(out, method+": "+msg, code)
		return oops.In("plugin").With("plugin", o.name).With("method", method).Wrap(err)
	}

	return o.putResult(method, ret, out)
}

// putResult classifies the method's return value.
func (o *Object) putResult(method string, ret engine.Value, out *blob.Builder) error {
	switch ret.Kind() {
	case engine.KindTable:
		mark := out.Len()
		out.PutString("result")
		t := out.OpenTable()
		if err := o.engine.Encode(ret, out); err != nil {
			out.Truncate(mark)
			putError(out, method+": "+err.Error(), 0)
			return oops.In("plugin").With("plugin", o.name).With("method", method).Wrap(err)
		}
		out.CloseTable(t)
	case engine.KindNumber:
		// A number is an error code by convention; there is no message.
		out.PutString("error")
		t := out.OpenTable()
		out.PutString("code")
		out.PutInt(ret.Integer())
		out.CloseTable(t)
	default:
		out.PutString("result")
		out.CloseTable(out.OpenTable())
	}
	return nil
}

// putError appends {error: {str: msg, code: code}}.
func putError(out *blob.Builder, msg string, code int64) {
	out.PutString("error")
	t := out.OpenTable()
	out.PutString("str")
	out.PutString(msg)
	out.PutString("code")
	out.PutInt(code)
	out.CloseTable(t)
}
