// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JUCI Contributors

//go:build integration

package plugin_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/mkschreder/jucid/internal/plugin"
	pluginlua "github.com/mkschreder/jucid/internal/plugin/lua"
	"github.com/mkschreder/jucid/internal/session"
	"github.com/mkschreder/jucid/pkg/blob"
)

// Bundled plugins and Lua libraries, relative to this package.
const (
	bundledPlugins = "../../plugins"
	bundledLibs    = "../../lualib"
)

var _ = Describe("Bundled plugins", func() {
	var (
		ctx      context.Context
		registry *plugin.Registry
		acl      *session.ACL
	)

	callJSON := func(sess *session.Session, object, method, args string) (any, error) {
		var field *blob.Field
		if args != "" {
			data, err := blob.FromJSON([]byte(args))
			Expect(err).NotTo(HaveOccurred())
			f, err := blob.Parse(data)
			Expect(err).NotTo(HaveOccurred())
			field = &f
		}
		out, err := registry.Call(ctx, sess, object, method, field)
		if out == nil {
			return nil, err
		}
		root, perr := blob.Parse(out)
		Expect(perr).NotTo(HaveOccurred())
		return root.Value(), err
	}

	BeforeEach(func() {
		ctx = context.Background()
		acl = session.NewACL()
		Expect(acl.Load(map[string][]string{
			"admin": {"**"},
			"guest": {"ubus:juci/system:info:x", "ubus:juci/system:echo:x"},
		})).To(Succeed())

		factory := pluginlua.NewStateFactory(pluginlua.WithLibDir(bundledLibs))
		registry = plugin.NewRegistry(bundledPlugins,
			plugin.WithEngineFactory(factory.NewEngine),
			plugin.WithAccessControl(true))
		Expect(registry.LoadAll(ctx)).To(Succeed())
	})

	AfterEach(func() {
		Expect(registry.Close(ctx)).To(Succeed())
	})

	It("discovers every bundled plugin", func() {
		Expect(registry.List()).To(ContainElements("juci/system", "juci/uci"))
	})

	It("publishes method signatures", func() {
		sig := registry.Signatures()["juci/system"]
		root, err := blob.Parse(sig)
		Expect(err).NotTo(HaveOccurred())
		Expect(root.Value()).To(HaveKey("info"))
		Expect(root.Value()).To(HaveKey("reboot"))
	})

	Describe("juci/system", func() {
		It("reports host information for the calling user", func() {
			res, err := callJSON(session.New("guest", acl), "juci/system", "info", "")
			Expect(err).NotTo(HaveOccurred())
			result := res.(map[string]any)["result"].(map[string]any)
			Expect(result).To(HaveKeyWithValue("user", "guest"))
			Expect(result).To(HaveKey("hostname"))
			Expect(result["time"]).To(BeNumerically(">", 0))
		})

		It("echoes nested arguments", func() {
			res, err := callJSON(session.New("admin", acl), "juci/system", "echo", `{"a":{"b":[1,2,3]},"s":"x"}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(res).To(Equal(map[string]any{
				"result": map[string]any{
					"a": map[string]any{"b": []any{int64(1), int64(2), int64(3)}},
					"s": "x",
				},
			}))
		})

		It("denies methods outside the caller's grants", func() {
			_, err := callJSON(session.New("guest", acl), "juci/system", "request_id", "")
			Expect(err).To(HaveOccurred())
		})

		It("lets the plugin make its own access decisions", func() {
			res, err := callJSON(session.New("admin", acl), "juci/system", "reboot", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(res).To(Equal(map[string]any{"result": map[string]any{}}))

			Expect(acl.SetGrants("operator", []string{"ubus:juci/system:reboot:x"})).To(Succeed())
			res, err = callJSON(session.New("operator", acl), "juci/system", "reboot", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(res).To(Equal(map[string]any{"error": map[string]any{"code": int64(13)}}))
		})
	})

	Describe("juci/uci", func() {
		var configDir string

		BeforeEach(func() {
			configDir = GinkgoT().TempDir()
		})

		It("stores and reads back options", func() {
			admin := session.New("admin", acl)
			_, err := callJSON(admin, "juci/uci", "set",
				`{"dir":"`+configDir+`","config":"network","option":"mtu","value":1500}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(filepath.Join(configDir, "network.json")).To(BeARegularFile())

			res, err := callJSON(admin, "juci/uci", "get",
				`{"dir":"`+configDir+`","config":"network","option":"mtu"}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(res).To(Equal(map[string]any{"result": map[string]any{"value": int64(1500)}}))

			res, err = callJSON(admin, "juci/uci", "configs", `{"dir":"`+configDir+`"}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(res).To(Equal(map[string]any{"result": map[string]any{"configs": []any{"network"}}}))
		})

		It("returns an error code for missing arguments", func() {
			res, err := callJSON(session.New("admin", acl), "juci/uci", "get", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(res).To(Equal(map[string]any{"error": map[string]any{"code": int64(22)}}))
		})

		It("reports read failures as raised errors", func() {
			Expect(os.WriteFile(filepath.Join(configDir, "broken.json"), []byte("{"), 0o600)).To(Succeed())
			Expect(os.Chmod(filepath.Join(configDir, "broken.json"), 0o000)).To(Succeed())
			DeferCleanup(os.Chmod, filepath.Join(configDir, "broken.json"), os.FileMode(0o600))

			if os.Geteuid() == 0 {
				Skip("root can read unreadable files")
			}
			res, err := callJSON(session.New("admin", acl), "juci/uci", "get",
				`{"dir":"`+configDir+`","config":"broken"}`)
			Expect(err).To(HaveOccurred())
			Expect(res).To(HaveKey("error"))
		})
	})

	It("reloads all plugins without dropping any", func() {
		before := registry.List()
		Expect(registry.ReloadAll(ctx)).To(Succeed())
		Expect(registry.List()).To(Equal(before))
	})
})
