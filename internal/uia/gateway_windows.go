//go:build windows && cgo

package uia

/*
#cgo LDFLAGS: -lole32 -loleaut32

#define COBJMACROS
#include <windows.h>
#include <oleauto.h>
#include <stdint.h>
#include <stdlib.h>
#include <string.h>
#include <uiautomation.h>

static const GUID scCLSID_CUIAutomation =
    {0xff48dba4, 0x60ef, 0x4201, {0xaa, 0x87, 0x54, 0x10, 0x3e, 0xef, 0x59, 0x4e}};
static const GUID scIID_IUIAutomation =
    {0x30cbe57d, 0xd9d0, 0x452a, {0xab, 0x13, 0x7a, 0xc5, 0xac, 0x48, 0x25, 0xee}};

#define SC_VT_EMPTY 0
#define SC_VT_STRING 1
#define SC_VT_INT 2
#define SC_VT_BOOL 3
#define SC_VT_FLOATS 4

typedef struct {
    int kind;
    char* str;
    int32_t i;
    int b;
    double f[4];
    int nf;
} scVariant;

static HRESULT scInit(IUIAutomation** automation, IUIAutomationTreeWalker** walker, int* owned) {
    HRESULT hr = CoInitializeEx(NULL, COINIT_MULTITHREADED);
    *owned = SUCCEEDED(hr);
    if (FAILED(hr) && hr != RPC_E_CHANGED_MODE) return hr;

    hr = CoCreateInstance(&scCLSID_CUIAutomation, NULL, CLSCTX_INPROC_SERVER,
                          &scIID_IUIAutomation, (void**)automation);
    if (FAILED(hr)) return hr;

    hr = IUIAutomation_get_ControlViewWalker(*automation, walker);
    if (FAILED(hr)) {
        IUIAutomation_Release(*automation);
        *automation = NULL;
    }
    return hr;
}

static void scShutdown(IUIAutomation* automation, IUIAutomationTreeWalker* walker, int owned) {
    if (walker) IUIAutomationTreeWalker_Release(walker);
    if (automation) IUIAutomation_Release(automation);
    if (owned) CoUninitialize();
}

static HRESULT scElementFromPoint(IUIAutomation* automation, LONG x, LONG y, IUIAutomationElement** out) {
    POINT pt;
    pt.x = x;
    pt.y = y;
    *out = NULL;
    return IUIAutomation_ElementFromPoint(automation, pt, out);
}

static HRESULT scFocused(IUIAutomation* automation, IUIAutomationElement** out) {
    *out = NULL;
    return IUIAutomation_GetFocusedElement(automation, out);
}

static HRESULT scWalk(IUIAutomationTreeWalker* walker, IUIAutomationElement* el, int dir, IUIAutomationElement** out) {
    *out = NULL;
    switch (dir) {
    case 0: return IUIAutomationTreeWalker_GetParentElement(walker, el, out);
    case 1: return IUIAutomationTreeWalker_GetFirstChildElement(walker, el, out);
    default: return IUIAutomationTreeWalker_GetNextSiblingElement(walker, el, out);
    }
}

static void scRelease(IUIAutomationElement* el) {
    if (el) IUIAutomationElement_Release(el);
}

static char* scUTF8(BSTR s) {
    if (!s) return NULL;
    int n = WideCharToMultiByte(CP_UTF8, 0, s, -1, NULL, 0, NULL, NULL);
    if (n <= 0) return NULL;
    char* out = (char*)malloc(n);
    if (!out) return NULL;
    WideCharToMultiByte(CP_UTF8, 0, s, -1, out, n, NULL, NULL);
    return out;
}

static HRESULT scProperty(IUIAutomationElement* el, PROPERTYID id, scVariant* out) {
    VARIANT v;
    VariantInit(&v);
    memset(out, 0, sizeof(*out));

    HRESULT hr = IUIAutomationElement_GetCurrentPropertyValue(el, id, &v);
    if (FAILED(hr)) return hr;

    switch (v.vt) {
    case VT_BSTR:
        out->kind = SC_VT_STRING;
        out->str = scUTF8(v.bstrVal);
        break;
    case VT_I4:
        out->kind = SC_VT_INT;
        out->i = v.lVal;
        break;
    case VT_BOOL:
        out->kind = SC_VT_BOOL;
        out->b = v.boolVal != VARIANT_FALSE;
        break;
    case VT_R8 | VT_ARRAY: {
        double* data = NULL;
        LONG lo = 0, hi = -1;
        SafeArrayGetLBound(v.parray, 1, &lo);
        SafeArrayGetUBound(v.parray, 1, &hi);
        if (SUCCEEDED(SafeArrayAccessData(v.parray, (void**)&data))) {
            int n = (int)(hi - lo + 1);
            if (n > 4) n = 4;
            for (int i = 0; i < n; i++) out->f[i] = data[i];
            out->nf = n < 0 ? 0 : n;
            out->kind = SC_VT_FLOATS;
            SafeArrayUnaccessData(v.parray);
        }
        break;
    }
    default:
        out->kind = SC_VT_EMPTY;
    }

    VariantClear(&v);
    return S_OK;
}
*/
import "C"

import (
	"fmt"
	"unsafe"

	"stepcap/internal/model"
)

type comGateway struct {
	automation *C.IUIAutomation
	walker     *C.IUIAutomationTreeWalker
	owned      C.int
}

// Open initializes COM in the multithreaded apartment and creates the UI
// Automation client. Open and Close must run on the same OS thread.
func Open() (Gateway, error) {
	g := &comGateway{}
	if hr := C.scInit(&g.automation, &g.walker, &g.owned); hr < 0 {
		if g.owned != 0 {
			C.scShutdown(nil, nil, g.owned)
		}
		return nil, fmt.Errorf("%w: CUIAutomation: HRESULT 0x%08x", ErrNotAvailable, uint32(hr))
	}
	return g, nil
}

func (g *comGateway) ElementFromPoint(p model.Point) (Element, error) {
	var el *C.IUIAutomationElement
	if hr := C.scElementFromPoint(g.automation, C.LONG(p.X), C.LONG(p.Y), &el); hr < 0 {
		return nil, fmt.Errorf("uia: ElementFromPoint%s: HRESULT 0x%08x", p, uint32(hr))
	}
	return g.wrap(el)
}

func (g *comGateway) FocusedElement() (Element, error) {
	var el *C.IUIAutomationElement
	if hr := C.scFocused(g.automation, &el); hr < 0 {
		return nil, fmt.Errorf("uia: GetFocusedElement: HRESULT 0x%08x", uint32(hr))
	}
	return g.wrap(el)
}

func (g *comGateway) ForegroundWindowTitle() (string, error) {
	return foregroundWindowTitle()
}

func (g *comGateway) Close() error {
	C.scShutdown(g.automation, g.walker, g.owned)
	g.automation, g.walker, g.owned = nil, nil, 0
	return nil
}

func (g *comGateway) wrap(el *C.IUIAutomationElement) (Element, error) {
	if el == nil {
		return nil, ErrNoElement
	}
	return &comElement{gw: g, el: el}, nil
}

type comElement struct {
	gw *comGateway
	el *C.IUIAutomationElement
}

func (e *comElement) Property(id PropertyID) (Variant, error) {
	if e.el == nil {
		return Variant{}, ErrReleased
	}
	var v C.scVariant
	if hr := C.scProperty(e.el, C.PROPERTYID(id), &v); hr < 0 {
		return Variant{}, fmt.Errorf("uia: property %d: HRESULT 0x%08x", id, uint32(hr))
	}
	switch v.kind {
	case C.SC_VT_STRING:
		if v.str == nil {
			return StringVariant(""), nil
		}
		defer C.free(unsafe.Pointer(v.str))
		return StringVariant(C.GoString(v.str)), nil
	case C.SC_VT_INT:
		return IntVariant(int32(v.i)), nil
	case C.SC_VT_BOOL:
		return BoolVariant(v.b != 0), nil
	case C.SC_VT_FLOATS:
		f := make([]float64, int(v.nf))
		for i := range f {
			f[i] = float64(v.f[i])
		}
		return FloatsVariant(f...), nil
	}
	return Variant{}, nil
}

func (e *comElement) walk(dir C.int) (Element, error) {
	if e.el == nil {
		return nil, ErrReleased
	}
	var out *C.IUIAutomationElement
	if hr := C.scWalk(e.gw.walker, e.el, dir, &out); hr < 0 {
		return nil, fmt.Errorf("uia: tree walk: HRESULT 0x%08x", uint32(hr))
	}
	return e.gw.wrap(out)
}

func (e *comElement) Parent() (Element, error)      { return e.walk(0) }
func (e *comElement) FirstChild() (Element, error)  { return e.walk(1) }
func (e *comElement) NextSibling() (Element, error) { return e.walk(2) }

func (e *comElement) Release() {
	C.scRelease(e.el)
	e.el = nil
}
