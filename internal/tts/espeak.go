// Package tts speaks assistant answers through espeak-ng.
package tts

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <string.h>
#include <espeak-ng/speak_lib.h>

int
espeak_say(const char *text, const char *lang)
{
	if (!text)
	{ return -1; }

	if (espeak_Initialize(AUDIO_OUTPUT_SYNCH_PLAYBACK, 500, NULL, 0) < 0)
	{ return -2; }

	espeak_VOICE specs;
	memset(&specs, 0, sizeof(specs));
	specs.languages = lang;
	espeak_SetVoiceByProperties(&specs);

	espeak_Synth(text, strlen(text) + 1, 0, POS_CHARACTER, 0, espeakCHARS_AUTO, NULL, NULL);
	espeak_Synchronize();
	espeak_Terminate();

	return 0;
}
*/
import "C"

import (
	"fmt"
	"strings"
	"sync"
	"unsafe"
)

// Speaker is anything that can say a line of text.
type Speaker interface {
	Speak(text string) error
}

// Espeak synthesizes in one voice language. espeak is not reentrant, so
// calls are serialized.
type Espeak struct {
	lang string
	mu   sync.Mutex
}

// NewEspeak takes a BCP 47 locale such as "pt-BR" and maps it to an espeak
// voice name.
func NewEspeak(locale string) *Espeak {
	return &Espeak{lang: Voice(locale)}
}

func (e *Espeak) Speak(text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))
	clang := C.CString(e.lang)
	defer C.free(unsafe.Pointer(clang))

	if rc := C.espeak_say(ctext, clang); rc != 0 {
		return fmt.Errorf("espeak_say failed: %d", int(rc))
	}
	return nil
}

// Voice converts a locale to espeak's lowercase voice naming.
func Voice(locale string) string {
	v := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(locale), "_", "-"))
	if v == "" {
		return "en"
	}
	return v
}
