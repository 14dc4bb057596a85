package dialogue

import (
	"fmt"
	"time"

	"voice-reminder-assistant/internal/service/temporal"
)

// Prompts are the sentences the assistant speaks in one language.
// DateLayout formats resolved dates when they are read back.
type Prompts struct {
	Topic      string
	Date       func(topic string) string
	Time       func(date string) string
	Notes      string
	Saved      func(topic, date, clock string) string
	Apology    string
	Unheard    string
	DateLayout string
}

var englishPrompts = &Prompts{
	Topic: "Hello! What should I remind you about? For example car maintenance, a meeting or a doctor's appointment.",
	Date: func(topic string) string {
		return fmt.Sprintf("Got it, a reminder for %s. On which day? For example tomorrow, next week or August 15.", topic)
	},
	Time: func(date string) string {
		return fmt.Sprintf("The date is set to %s. At what time should I remind you? For example 9 in the morning, 2 in the afternoon or 7 in the evening.", date)
	},
	Notes: "Finally, is there anything you would like to add? Otherwise just say no.",
	Saved: func(topic, date, clock string) string {
		return fmt.Sprintf("Done! Your %s reminder is saved for %s at %s. Press start again to create another one.", topic, date, clock)
	},
	Apology:    "Sorry, something went wrong while saving. Please try again.",
	Unheard:    "Sorry, I could not hear you. Please start again.",
	DateLayout: "Monday, January 2, 2006",
}

var turkishPrompts = &Prompts{
	Topic: "Merhaba! Hangi konuda anımsatıcı oluşturmak istiyorsunuz? Mesela araba bakımı, toplantı, doktor randevusu gibi söyleyebilirsiniz.",
	Date: func(topic string) string {
		return fmt.Sprintf("Anladım, %s için anımsatıcı oluşturuyorum. Bu işlem hangi tarihte yapılacak? Mesela yarın, gelecek hafta, 15 Ağustos gibi söyleyebilirsiniz.", topic)
	},
	Time: func(date string) string {
		return fmt.Sprintf("Tarih olarak %s kaydedildi. Saat kaçta hatırlatmamı istiyorsunuz? Mesela sabah 9, öğleden sonra 2, akşam 7 gibi.", date)
	},
	Notes: "Son olarak, bu konu hakkında eklemek istediğiniz özel bir not var mı? Yoksa hayır diyebilirsiniz.",
	Saved: func(topic, date, clock string) string {
		return fmt.Sprintf("Mükemmel! %s anımsatıcınız %s %s için kaydedildi. Başka bir anımsatıcı oluşturmak isterseniz tekrar başlat butonuna basabilirsiniz.", topic, date, clock)
	},
	Apology:    "Üzgünüm, kaydederken bir hata oluştu. Lütfen tekrar deneyin.",
	Unheard:    "Üzgünüm, sizi duyamadım. Lütfen tekrar başlatın.",
	DateLayout: "02.01.2006",
}

// PromptsFor returns the prompts matching a BCP 47 language code, English by default.
func PromptsFor(code string) *Prompts {
	if temporal.ForLanguage(code) == temporal.Turkish {
		return turkishPrompts
	}
	return englishPrompts
}

// FormatDate renders a parsed date for reading back.
func (p *Prompts) FormatDate(r temporal.DateResult) string {
	if !r.Resolved {
		return r.Raw
	}
	return r.Date.In(time.UTC).Format(p.DateLayout)
}

// FormatTime renders a parsed time for reading back.
func (p *Prompts) FormatTime(r temporal.TimeResult) string {
	return r.String()
}
