package entity

import (
	"encoding/xml"
	"strings"
)

// ParseXML parses an XML document into an entity tree. Element names become
// entity names, attributes become properties, character content becomes the
// VALUE slot, and child elements become entity- or list-valued properties.
// When a root factory is supplied, matching factories validate each element.
func ParseXML(root *Factory, body string) (*Entity, []error) {
	dec := xml.NewDecoder(strings.NewReader(body))
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, []error{err}
		}
		if start, ok := tok.(xml.StartElement); ok {
			return parseElement(dec, root, start)
		}
	}
}

// ParseXMLElement parses the subtree of an already-consumed start element
// from an open decoder.
func ParseXMLElement(dec *xml.Decoder, root *Factory, start xml.StartElement) (*Entity, []error) {
	return parseElement(dec, root, start)
}

func parseElement(dec *xml.Decoder, root *Factory, start xml.StartElement) (*Entity, []error) {
	var errs []error
	props := make(map[string]Value)
	for _, attr := range start.Attr {
		if attr.Name.Space == "xmlns" || attr.Name.Local == "xmlns" {
			continue
		}
		props[attr.Name.Local] = attr.Value
	}

	var text strings.Builder
	children := make(map[string]EntityList)
	var order []string

	for {
		tok, err := dec.Token()
		if err != nil {
			errs = append(errs, err)
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, childErrs := parseElement(dec, root, t)
			errs = append(errs, childErrs...)
			if child != nil {
				if _, ok := children[child.Name()]; !ok {
					order = append(order, child.Name())
				}
				children[child.Name()] = append(children[child.Name()], child)
			}
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			goto done
		}
	}
done:

	if s := strings.TrimSpace(text.String()); s != "" && len(children) == 0 {
		props[ValueProperty] = s
	}
	for _, name := range order {
		list := children[name]
		if len(list) == 1 {
			props[name] = list[0]
		} else {
			props[name] = list
		}
	}

	name := start.Name.Local
	if root != nil {
		if f := root.FactoryFor(name); f != nil {
			ent, ferrs := f.Create(name, props)
			return ent, append(errs, ferrs...)
		}
	}
	return NewWith(name, props), errs
}
