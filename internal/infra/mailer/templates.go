package mailer

import (
	"bytes"
	"fmt"
	"html/template"

	"reconciler/internal/domain/model"
)

// 種類ごとの件名と本文
type mailTemplate struct {
	subject string
	heading string
	message string
	footer  string
}

var templates = map[string]mailTemplate{
	model.EmailFlagConfirmed: {
		subject: "Confirmación de compra #%s",
		heading: "¡Gracias por tu compra, %s!",
		message: "Tu pago fue acreditado correctamente y comenzaremos a preparar tu pedido en breve.",
		footer:  "Si necesitás ayuda, escribinos a",
	},
	model.EmailFlagPending: {
		subject: "Pago pendiente - Orden #%s",
		heading: "Tu pago está en proceso, %s",
		message: "Estamos esperando la confirmación de Mercado Pago. Te avisaremos apenas se acredite.",
		footer:  "Ante cualquier consulta, respondé este correo o escribinos a",
	},
	model.EmailFlagRejected: {
		subject: "Pago rechazado - Orden #%s",
		heading: "Necesitamos que revises tu pago, %s",
		message: "El intento de pago fue rechazado. Podés volver a intentar con otra tarjeta o medio de pago en tu cuenta de Mercado Pago.",
		footer:  "Si creés que es un error, contactanos en",
	},
}

var layout = template.Must(template.New("order").Parse(`<div style="font-family: Arial, Helvetica, sans-serif; color: #0f172a; background: #f8fafc; padding: 24px;">
  <table role="presentation" width="100%" cellspacing="0" cellpadding="0" style="max-width: 640px; margin: 0 auto; background: #ffffff; border-radius: 12px; overflow: hidden;">
    <tr>
      <td style="padding: 32px;">
        <h1 style="font-size: 20px; margin: 0 0 16px;">{{.Heading}}</h1>
        <p style="font-size: 16px; line-height: 24px; margin: 0 0 16px;">{{.Message}}</p>
        <p style="font-size: 14px; line-height: 20px; margin: 0 0 12px; color: #475569;">Número de pedido: <strong>{{.OrderNumber}}</strong></p>
        {{- if .Total}}
        <p style="font-size: 14px; line-height: 20px; margin: 0 0 12px; color: #475569;">Total: <strong>{{.Total}}</strong></p>
        {{- end}}
        {{- if .Support}}
        <p style="font-size: 14px; line-height: 20px; margin: 16px 0 0;">{{.Footer}} <a href="mailto:{{.Support}}">{{.Support}}</a>.</p>
        {{- end}}
      </td>
    </tr>
  </table>
</div>`))

type layoutData struct {
	Heading     string
	Message     string
	OrderNumber string
	Total       string
	Footer      string
	Support     string
}

// render は件名とHTMLを返す。テンプレートが無い種類はfalse。
func render(flag string, order model.Order, support string) (string, string, bool, error) {
	t, ok := templates[flag]
	if !ok {
		return "", "", false, nil
	}

	number := order.Ref()
	data := layoutData{
		Heading:     fmt.Sprintf(t.heading, customerName(order)),
		Message:     t.message,
		OrderNumber: number,
		Total:       formatTotal(order),
		Footer:      t.footer,
		Support:     support,
	}

	var buf bytes.Buffer
	if err := layout.Execute(&buf, data); err != nil {
		return "", "", true, err
	}
	return fmt.Sprintf(t.subject, number), buf.String(), true, nil
}

func customerName(o model.Order) string {
	if o.CustomerName != "" {
		return o.CustomerName
	}
	return "cliente"
}

func formatTotal(o model.Order) string {
	if !o.TotalAmount.IsPositive() {
		return ""
	}
	cur := o.Currency
	if cur == "" {
		cur = "ARS"
	}
	return fmt.Sprintf("%s %s", cur, o.TotalAmount.StringFixed(2))
}
