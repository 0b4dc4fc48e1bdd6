// Package application contém os casos de uso (regras de aplicação) do rate
// limit: resolução de precedência de regras e decisão nas duas partições.
//
// Ele depende apenas do pacote domain e não conhece net/http.
package application
