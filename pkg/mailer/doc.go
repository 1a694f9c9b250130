// Package mailer renders message bodies and hands them to an outbound
// provider.
//
// # Components
//
//   - Renderer fills a pongo2 (Django syntax) template from a data map and
//     never fails: any parse or execution error, including a reference to an
//     undefined variable, yields the fixed fallback layout instead.
//   - Library holds named .md and .txt templates loaded from an fs.FS, with
//     optional YAML frontmatter. Markdown templates are converted to HTML
//     after rendering.
//   - Transport delivers one message through a Sender and reports a Result
//     instead of an error. Bodies containing both '<' and '>' go out as HTML
//     with a stripped plain-text alternative, anything else as plain text.
//   - Sender is the provider boundary. Implementations live in the smtp,
//     resend and ses subpackages.
//
// # Usage
//
//	renderer := mailer.NewRenderer(cfg.Identity, mailer.WithRendererLogger(log))
//	body := renderer.Render(mailer.DefaultTemplate, map[string]any{
//		"subject": "Hello",
//		"context": map[string]any{"name": "Ann", "offer": "20% off"},
//	})
//
//	sender, _ := smtp.New(smtpCfg)
//	transport := mailer.NewTransport(sender,
//		mailer.WithIdentity(cfg.Identity),
//		mailer.WithSendTimeout(cfg.SendTimeout),
//	)
//	res := transport.Deliver(ctx, "ann@example.com", "Hello", body)
//	if !res.OK {
//		log.Warn("delivery failed", slog.Any("error", res.Err))
//	}
//
// # Templates
//
// Library templates may start with a frontmatter block:
//
//	---
//	subject: Welcome aboard
//	description: First message after sign-up
//	---
//	# Hi {{ context.name }}
//
//	{{ context.custom_message }}
//
// Every render receives current_time, sender_name, sender_email and
// sender_phone in addition to the caller's data.
package mailer
